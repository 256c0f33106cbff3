package nocodb

import (
	"fmt"
	"reflect"

	nocodbcommand "github.com/ChasLui/nocodb/command"
	"github.com/ChasLui/nocodb/core"
	nocodbquery "github.com/ChasLui/nocodb/query"
)

type CommandQueryService interface {
	nocodbcommand.MutatingService
	nocodbquery.IntegrationReader
}

type Commands struct {
	Create        *nocodbcommand.CreateIntegrationCommand
	Update        *nocodbcommand.UpdateIntegrationCommand
	SoftDelete    *nocodbcommand.SoftDeleteIntegrationCommand
	Delete        *nocodbcommand.DeleteIntegrationCommand
	ReleaseSource *nocodbcommand.ReleaseSourceCommand
}

type Queries struct {
	GetIntegration    *nocodbquery.GetIntegrationQuery
	ListIntegrations  *nocodbquery.ListIntegrationsQuery
	ListActiveSources *nocodbquery.ListActiveSourcesQuery
	ListActivity      *nocodbquery.ListActivityQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activityReader nocodbquery.ActivityReader
	sourceReader   nocodbquery.SourceReader
	releaser       core.ConnectionReleaser
}

func WithActivityReader(reader nocodbquery.ActivityReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activityReader = reader
	}
}

func WithSourceReader(reader nocodbquery.SourceReader) FacadeOption {
	return func(options *facadeOptions) {
		options.sourceReader = reader
	}
}

// WithSourceReleaser binds the local connection releaser the facade's
// ReleaseSource command settles against. Without one the command is a
// no-op receiver, which duplicate fan-out tolerates.
func WithSourceReleaser(releaser core.ConnectionReleaser) FacadeOption {
	return func(options *facadeOptions) {
		options.releaser = releaser
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("nocodb: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	activityReader := cfg.activityReader
	if activityReader == nil {
		activityReader = resolveActivityReader(service)
	}
	sourceReader := cfg.sourceReader
	if sourceReader == nil {
		sourceReader = resolveSourceReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Create:        nocodbcommand.NewCreateIntegrationCommand(service),
		Update:        nocodbcommand.NewUpdateIntegrationCommand(service),
		SoftDelete:    nocodbcommand.NewSoftDeleteIntegrationCommand(service),
		Delete:        nocodbcommand.NewDeleteIntegrationCommand(service),
		ReleaseSource: nocodbcommand.NewReleaseSourceCommand(cfg.releaser),
	}
	facade.queries = Queries{
		GetIntegration:    nocodbquery.NewGetIntegrationQuery(service),
		ListIntegrations:  nocodbquery.NewListIntegrationsQuery(service),
		ListActiveSources: nocodbquery.NewListActiveSourcesQuery(sourceReader),
		ListActivity:      nocodbquery.NewListActivityQuery(activityReader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveActivityReader(service CommandQueryService) nocodbquery.ActivityReader {
	if reader, ok := service.(nocodbquery.ActivityReader); ok {
		return reader
	}
	candidate := resolveFactoryStore(service, "ActivityStore")
	if candidate == nil {
		return nil
	}
	reader, ok := candidate.(nocodbquery.ActivityReader)
	if !ok {
		return nil
	}
	return reader
}

func resolveSourceReader(service CommandQueryService) nocodbquery.SourceReader {
	if reader, ok := service.(nocodbquery.SourceReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	store := provider.Dependencies().SourceStore
	if store == nil {
		return nil
	}
	return store
}

// resolveFactoryStore pulls a named zero-arg store accessor off the
// configured repository factory. The factory is an untyped dependency,
// so the lookup goes through reflection and tolerates absent methods.
func resolveFactoryStore(service CommandQueryService, methodName string) any {
	if service == nil {
		return nil
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	deps := provider.Dependencies()
	if deps.RepositoryFactory == nil {
		return nil
	}

	factoryValue := reflect.ValueOf(deps.RepositoryFactory)
	if !factoryValue.IsValid() {
		return nil
	}
	if factoryValue.Kind() == reflect.Ptr && factoryValue.IsNil() {
		return nil
	}
	method := factoryValue.MethodByName(methodName)
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return nil
	}

	results, ok := safeReflectCall(method)
	if !ok || len(results) != 1 {
		return nil
	}
	candidate := results[0]
	if !candidate.IsValid() {
		return nil
	}
	if candidate.Kind() == reflect.Ptr && candidate.IsNil() {
		return nil
	}
	return candidate.Interface()
}

func safeReflectCall(method reflect.Value) (_ []reflect.Value, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return method.Call(nil), true
}
