// A small end-to-end demonstration of the entity store against a local
// GraphDB repository: it connects as the system administrator, creates a
// project, registers a user with an administrative grant in it, and reads
// both back through the SQLite cache.
//
// Endpoint settings come from the environment (SPARQL_BASE_URL and friends);
// the defaults expect GraphDB on localhost:7200 with a repository named
// "entities".
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/graphadm/entitystore-go/entitystore"
	"github.com/graphadm/entitystore-go/entitystore/oteladapters"
	"github.com/graphadm/entitystore-go/entitystore/records"
	"github.com/graphadm/entitystore-go/entitystore/sparqlhttp"
	"github.com/graphadm/entitystore-go/entitystore/sqlitecache"
)

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("demo failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := sparqlhttp.ConfigFromEnv()
	if err != nil {
		return err
	}

	root := entitystore.Actor{
		IRI: "urn:uuid:00000000-0000-0000-0000-000000000001",
		Grants: map[entitystore.IRI]map[entitystore.QName]struct{}{
			records.SystemProject: {records.AdminSystem: {}},
		},
	}
	conn, err := sparqlhttp.Connect(cfg, sparqlhttp.WithActor(root))
	if err != nil {
		return err
	}

	cache, err := sqlitecache.Open(":memory:", resolveSchema)
	if err != nil {
		return err
	}
	defer cache.Close()

	meterProvider := sdkmetric.NewMeterProvider()
	tracerProvider := sdktrace.NewTracerProvider()
	defer func() {
		_ = meterProvider.Shutdown(ctx)
		_ = tracerProvider.Shutdown(ctx)
	}()

	store, err := entitystore.NewStore(conn,
		entitystore.WithPrefixes(records.Prefixes()),
		entitystore.WithAuthorization(records.Authorize),
		entitystore.WithCache(cache),
		entitystore.WithContextualLogger(
			oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewTextHandler(os.Stdout, nil))),
		entitystore.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("entitystore-demo"))),
		entitystore.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("entitystore-demo"))),
	)
	if err != nil {
		return err
	}

	project, err := createProject(ctx, store)
	if err != nil {
		return err
	}
	user, err := registerUser(ctx, store, project)
	if err != nil {
		return err
	}

	// a fresh read bypassing the cache proves the record round trip
	reloaded, err := records.LoadUser(entitystore.WithCacheBypass(ctx), store, user.Subject())
	if err != nil {
		return err
	}
	fmt.Printf("user %s manages users in %v\n", reloaded.Subject(), reloaded.Grants().Keys())

	return nil
}

func createProject(ctx context.Context, store *entitystore.Store) (records.Project, error) {
	project, err := records.NewProject("")
	if err != nil {
		return records.Project{}, err
	}
	if err = project.Set(records.ProjectShortName, "hyperhamlet"); err != nil {
		return records.Project{}, err
	}
	if err = project.Set(records.ProjectNamespace, "https://hyperhamlet.example/ns#"); err != nil {
		return records.Project{}, err
	}
	if err = project.Set(records.ProjectLabel, "HyperHamlet"); err != nil {
		return records.Project{}, err
	}
	if err = store.Create(ctx, project.Entity); err != nil {
		return records.Project{}, err
	}
	fmt.Printf("created project %s\n", project.Subject())

	return project, nil
}

func registerUser(ctx context.Context, store *entitystore.Store, project records.Project) (records.User, error) {
	user, err := records.NewUser("")
	if err != nil {
		return records.User{}, err
	}
	if err = user.Set(records.UserID, "jdoe"); err != nil {
		return records.User{}, err
	}
	if err = user.Set(records.UserFamilyName, "Doe"); err != nil {
		return records.User{}, err
	}
	if err = user.Set(records.UserGivenName, "Jay"); err != nil {
		return records.User{}, err
	}
	if err = user.SetPassword("to be or not to be"); err != nil {
		return records.User{}, err
	}
	user.Grants().Set(project.Subject(), records.AdminUsers)
	if err = store.Create(ctx, user.Entity); err != nil {
		return records.User{}, err
	}
	fmt.Printf("registered user %s\n", user.Subject())

	return user, nil
}

func resolveSchema(typeName string) (*entitystore.Schema, bool) {
	switch typeName {
	case records.ProjectSchema().TypeName():
		return records.ProjectSchema(), true
	case records.UserSchema().TypeName():
		return records.UserSchema(), true
	case records.PermissionSetSchema().TypeName():
		return records.PermissionSetSchema(), true
	default:
		return nil, false
	}
}
