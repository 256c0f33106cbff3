package nocodb

import (
	"fmt"
	"strings"

	"github.com/ChasLui/nocodb/providers"
	"github.com/ChasLui/nocodb/providers/discord"
	"github.com/ChasLui/nocodb/providers/gemini"
	"github.com/ChasLui/nocodb/providers/minio"
	"github.com/ChasLui/nocodb/providers/mssql"
	"github.com/ChasLui/nocodb/providers/snowflake"
)

func MSSQLConnector(cfg mssql.Config) (*providers.Connector, error) {
	return mssql.New(cfg)
}

func SnowflakeConnector(cfg snowflake.Config) (*providers.Connector, error) {
	return snowflake.New(cfg)
}

func GeminiConnector(cfg gemini.Config) (*providers.Connector, error) {
	return gemini.New(cfg)
}

func MinIOConnector(cfg minio.Config) (*providers.Connector, error) {
	return minio.New(cfg)
}

func DiscordConnector(cfg discord.Config) (*providers.Connector, error) {
	return discord.New(cfg)
}

// ConnectorTypePack bundles connectors into a type pack for the
// extension hooks; pair it with ConnectorRulePacks so the schema
// validator picks up each connector's rule set.
func ConnectorTypePack(name string, connectors ...*providers.Connector) (TypePack, error) {
	if strings.TrimSpace(name) == "" {
		return TypePack{}, fmt.Errorf("nocodb: type pack name is required")
	}
	if len(connectors) == 0 {
		return TypePack{}, fmt.Errorf("nocodb: type pack %q has no connectors", name)
	}
	pack := TypePack{Name: name}
	for _, connector := range connectors {
		if connector == nil {
			return TypePack{}, fmt.Errorf("nocodb: type pack %q contains nil connector", name)
		}
		pack.Types = append(pack.Types, connector.Descriptor())
	}
	return pack, nil
}

// ConnectorRulePacks derives one schema rule pack per connector, named
// "<pack>/<type id>".
func ConnectorRulePacks(name string, connectors ...*providers.Connector) ([]SchemaRulePack, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("nocodb: rule pack name is required")
	}
	packs := make([]SchemaRulePack, 0, len(connectors))
	for _, connector := range connectors {
		if connector == nil {
			return nil, fmt.Errorf("nocodb: rule pack %q contains nil connector", name)
		}
		packs = append(packs, SchemaRulePack{
			Name:   name + "/" + connector.ID(),
			TypeID: connector.ID(),
			Rule:   connector.Rule(),
		})
	}
	return packs, nil
}
