package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Migration System Overview:
//
// The schema is bootstrapped from a single LATEST.sql per driver. A fresh
// database gets the full schema in one pass; an initialized database is left
// untouched. Incremental migrations can slot in next to LATEST.sql when the
// schema first needs to change in a released version.
//
// After the schema exists, Migrate seeds the default funnel templates (two
// per active stage) unless templates are already present.

//go:embed migration
var migrationFS embed.FS

// LatestSchemaFileName is the full schema applied to fresh installations.
const LatestSchemaFileName = "LATEST.sql"

// Migrate bootstraps the database schema and seed data.
func (s *Store) Migrate(ctx context.Context) error {
	initialized, err := s.driver.IsInitialized(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to check database initialization")
	}

	if !initialized {
		if err := s.applyLatestSchema(ctx); err != nil {
			return errors.Wrap(err, "failed to apply latest schema")
		}
		slog.Info("database schema initialized", "driver", s.profile.Driver)
	}

	if err := s.seedFunnelTemplates(ctx); err != nil {
		return errors.Wrap(err, "failed to seed funnel templates")
	}
	return nil
}

func (s *Store) applyLatestSchema(ctx context.Context) error {
	path := fmt.Sprintf("migration/%s/%s", s.profile.Driver, LatestSchemaFileName)
	buf, err := migrationFS.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read schema file %q", path)
	}
	if _, err := s.driver.GetDB().ExecContext(ctx, string(buf)); err != nil {
		return errors.Wrapf(err, "failed to execute schema file %q", path)
	}
	return nil
}

// defaultFunnelTemplates are the stock messages per stage, adapted from the
// original ZF Portal campaign copy. Position 0 opens the stage, position 1
// follows up.
var defaultFunnelTemplates = []*FunnelTemplate{
	{Stage: StageAttraction, Position: 0, Content: "Olá {{nome}}! Obrigado por seu interesse na ZF Portal. Somos especializados em soluções digitais e gostaríamos de entender melhor suas necessidades."},
	{Stage: StageAttraction, Position: 1, Content: "Olá {{nome}}, passando para saber se você teve a oportunidade de conhecer mais sobre a ZF Portal e nossos serviços."},
	{Stage: StageRelationship, Position: 0, Content: "Olá {{nome}}, espero que esteja tudo bem! Estamos acompanhando seu interesse e gostaria de saber se podemos ajudar com mais informações."},
	{Stage: StageRelationship, Position: 1, Content: "Olá {{nome}}, como vai? Após nossa última conversa, gostaria de compartilhar algumas informações adicionais que podem ser úteis para você."},
	{Stage: StageConversion, Position: 0, Content: "Olá {{nome}}, com base no seu interesse, preparamos uma proposta personalizada para atender às suas necessidades."},
	{Stage: StageConversion, Position: 1, Content: "Olá {{nome}}, nossa proposta segue disponível. Posso esclarecer alguma dúvida para avançarmos?"},
}

func (s *Store) seedFunnelTemplates(ctx context.Context) error {
	existing, err := s.driver.ListFunnelTemplates(ctx, &FindFunnelTemplate{})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, tmpl := range defaultFunnelTemplates {
		if _, err := s.driver.CreateFunnelTemplate(ctx, tmpl); err != nil {
			return errors.Wrapf(err, "failed to seed template for stage %s", tmpl.Stage)
		}
	}
	slog.Info("seeded default funnel templates", "count", len(defaultFunnelTemplates))
	return nil
}
