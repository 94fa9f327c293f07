package cmd

import (
	"github.com/shelltide/shelltide/internal/config"
	"github.com/shelltide/shelltide/internal/migrate"
	"github.com/shelltide/shelltide/internal/platform"
)

// session bundles everything a command needs to talk to the platform.
type session struct {
	store   config.Store
	cfg     *config.Config
	adapter *platform.Adapter
}

func newSession() (*session, error) {
	s, err := store()
	if err != nil {
		return nil, err
	}
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	creds, err := cfg.GetCredentials()
	if err != nil {
		return nil, err
	}
	client := platform.New(creds.URL, creds.AccessToken)
	return &session{
		store:   s,
		cfg:     cfg,
		adapter: &platform.Adapter{Client: client},
	}, nil
}

// sourceRef resolves the default source environment and a database name on
// it into a ref plus coordinates.
func (s *session) sourceRef(database string) (migrate.DatabaseRef, migrate.Coordinates, error) {
	name, env, err := s.cfg.SourceEnv()
	if err != nil {
		return migrate.DatabaseRef{}, migrate.Coordinates{}, err
	}
	ref := migrate.DatabaseRef{Env: name, Database: database}
	coords := migrate.Coordinates{Project: env.Project, Instance: env.Instance, Database: database}
	return ref, coords, nil
}

// targetRef parses and resolves an "<env>/<database>" argument.
func (s *session) targetRef(arg string) (migrate.DatabaseRef, migrate.Coordinates, error) {
	ref, err := migrate.ParseDatabaseRef(arg)
	if err != nil {
		return migrate.DatabaseRef{}, migrate.Coordinates{}, err
	}
	coords, err := s.cfg.Resolve(ref)
	if err != nil {
		return migrate.DatabaseRef{}, migrate.Coordinates{}, err
	}
	return ref, coords, nil
}
