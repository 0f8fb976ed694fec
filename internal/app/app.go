package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/termgraph-backend/internal/clients/redis"
	"github.com/yungbote/termgraph-backend/internal/data/db"
	"github.com/yungbote/termgraph-backend/internal/data/graph"
	"github.com/yungbote/termgraph-backend/internal/data/repos/components"
	httpserver "github.com/yungbote/termgraph-backend/internal/http"
	httpH "github.com/yungbote/termgraph-backend/internal/http/handlers"
	"github.com/yungbote/termgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/termgraph-backend/internal/platform/observability"
	"github.com/yungbote/termgraph-backend/internal/snomed/concepts"
	"github.com/yungbote/termgraph-backend/internal/snomed/ecl"
	"github.com/yungbote/termgraph-backend/internal/snomed/ident"
	"github.com/yungbote/termgraph-backend/internal/snomed/members"
	"github.com/yungbote/termgraph-backend/internal/snomed/semidx"
	"github.com/yungbote/termgraph-backend/internal/vc"
)

type Repos struct {
	Concepts      components.ConceptRepo
	Descriptions  components.DescriptionRepo
	Relationships components.RelationshipRepo
	Members       components.MemberRepo
	QueryConcepts components.QueryConceptRepo
}

type Services struct {
	VC        *vc.Service
	Concepts  *concepts.Service
	Members   *members.Service
	ECL       *ecl.Service
	Rebuilder *semidx.Rebuilder
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services

	eclCache     *redis.ECLCache
	neo4j        *neo4jdb.Client
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig()

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	database, err := db.NewService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := database.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := database.DB()

	reposet := wireRepos(theDB, log)
	serviceset, eclCache, neo4jClient, err := wireServices(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	if err := ensureRootBranch(serviceset.VC, log); err != nil {
		log.Sync()
		return nil, err
	}

	router := wireRouter(log, cfg, serviceset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		eclCache:     eclCache,
		neo4j:        neo4jClient,
		otelShutdown: otelShutdown,
	}, nil
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Concepts:      components.NewConceptRepo(theDB, log),
		Descriptions:  components.NewDescriptionRepo(theDB, log),
		Relationships: components.NewRelationshipRepo(theDB, log),
		Members:       components.NewMemberRepo(theDB, log),
		QueryConcepts: components.NewQueryConceptRepo(theDB, log),
	}
}

func wireServices(theDB *gorm.DB, log *logger.Logger, cfg Config, repos Repos) (Services, *redis.ECLCache, *neo4jdb.Client, error) {
	branches := vc.NewRegistry(theDB, log)
	vcs := vc.NewService(theDB, branches, log)

	typeRegistry, err := members.LoadTypeRegistry(cfg.RefsetTypesPath, log)
	if err != nil {
		return Services{}, nil, nil, fmt.Errorf("load refset types: %w", err)
	}

	identifiers := ident.NewLocalSource(cfg.IdentifierStart, log)

	conceptService := concepts.NewService(vcs, repos.Concepts, repos.Descriptions, repos.Relationships, repos.Members, identifiers, log)
	memberService := members.NewService(vcs, repos.Members, repos.Descriptions, typeRegistry, log)
	memberService.OnOwlChange = conceptService.UpdateDefinitionStatuses

	indexUpdater := semidx.NewUpdater(theDB, repos.Relationships, repos.Members, repos.Concepts, repos.QueryConcepts, log)
	vcs.RegisterListener(indexUpdater)
	rebuilder := semidx.NewRebuilder(vcs, indexUpdater)

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j mirror disabled", "error", err)
	}
	if neo4jClient != nil {
		vcs.RegisterListener(graph.NewTaxonomyMirror(neo4jClient, theDB, log))
	}

	eclCache, err := redis.NewECLCache(log)
	if err != nil {
		log.Warn("ecl cache disabled", "error", err)
	}
	var cache ecl.ResultCache
	if eclCache != nil {
		cache = eclCache
	}
	eclService := ecl.NewService(branches, repos.Concepts, repos.Relationships, repos.QueryConcepts, cache, log)

	return Services{
		VC:        vcs,
		Concepts:  conceptService,
		Members:   memberService,
		ECL:       eclService,
		Rebuilder: rebuilder,
	}, eclCache, neo4jClient, nil
}

func wireRouter(log *logger.Logger, cfg Config, services Services) *gin.Engine {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		HealthHandler:  httpH.NewHealthHandler(),
		BranchHandler:  httpH.NewBranchHandler(services.VC),
		ConceptHandler: httpH.NewConceptHandler(services.Concepts),
		MemberHandler:  httpH.NewMemberHandler(services.Members),
		ECLHandler:     httpH.NewECLHandler(services.ECL, services.Rebuilder),
	})
}

func ensureRootBranch(vcs *vc.Service, log *logger.Logger) error {
	ctx := dbctx.Context{Ctx: context.Background()}
	branches := vcs.Registry()
	exists, err := branches.Exists(ctx, vc.RootPath)
	if err != nil {
		return fmt.Errorf("check root branch: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := branches.Create(ctx, vc.RootPath); err != nil {
		return fmt.Errorf("create root branch: %w", err)
	}
	log.Info("root branch created", "path", vc.RootPath)
	return nil
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.eclCache != nil {
		_ = a.eclCache.Close()
	}
	if a.neo4j != nil {
		_ = a.neo4j.Close(context.Background())
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
