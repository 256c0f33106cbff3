// Package providers contains built-in connector descriptors and factories.
//
// A connector bundles the type registry descriptor for one integration
// type with the config rule set its payloads must satisfy. The builtin
// types ship seeded in the core registry; the packages below add
// extension types on top.
package providers
