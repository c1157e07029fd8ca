package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"auction-worker/internal/config"
	"auction-worker/internal/domain"
	"auction-worker/internal/infrastructure/memory"
	"auction-worker/internal/infrastructure/mysql"
	"auction-worker/internal/infrastructure/redis"
	"auction-worker/internal/infrastructure/tenderapi"
	"auction-worker/internal/infrastructure/websocket"
	"auction-worker/internal/services"
	"auction-worker/pkg/logger"
	"auction-worker/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
)

// worker owns every resource of one auction worker process.
type worker struct {
	cfg         *config.Config
	log         logger.Logger
	tenderID    string
	instanceID  string
	rdb         *redisClient.Client
	db          *sql.DB
	controller  *services.LifecycleController
	connManager *websocket.ConnectionManager
	lock        domain.WorkerLock
}

func newWorker(ctx context.Context, tenderID string) (*worker, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var auctionData []byte
	if opts.auctionData != "" {
		if auctionData, err = os.ReadFile(opts.auctionData); err != nil {
			return nil, fmt.Errorf("read auction data: %w", err)
		}
	}

	log := logger.New()
	if auctionData != nil {
		log = logger.NewDebug()
	}

	w := &worker{
		cfg:         cfg,
		log:         log,
		tenderID:    tenderID,
		instanceID:  utils.GenerateID("worker"),
		connManager: websocket.NewConnectionManager(log),
	}
	log.Info("Starting auction worker", "tender_id", tenderID, "config", cfg.GetConfigString())

	var store domain.DocumentStore
	var publisher domain.DocumentEventPublisher
	if opts.inMemory {
		store = memory.NewDocumentStore()
		publisher = websocket.NewWebSocketNotifier(w.connManager)
	} else {
		w.rdb = redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := w.rdb.Ping(pingCtx).Err(); err != nil {
			w.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		store = redis.NewDocumentStore(w.rdb)
		publisher = redis.NewEventPublisher(w.rdb)
		w.lock = redis.NewWorkerLock(w.rdb, cfg.Lock.TTL)
	}

	var journal domain.JobJournal
	if cfg.MySQL.DSN != "" {
		if w.db, err = utils.InitializeMysql(ctx, cfg.MySQL); err != nil {
			w.Close()
			return nil, err
		}
		if cfg.MySQL.Migrate {
			if err := mysql.Migrate(w.db); err != nil {
				w.Close()
				return nil, err
			}
		}
		journal = mysql.NewMySQLJobJournal(w.db)
	}

	useAPI := cfg.Worker.UseAPI && opts.withAPI
	var client domain.TenderDataClient
	if useAPI {
		client, err = tenderapi.NewClient(cfg.Worker.ResourceAPIServer, cfg.Worker.ResourceAPIVersion,
			cfg.Worker.ResourceName, tenderID, cfg.Worker.HTTPTimeout)
		if err != nil {
			w.Close()
			return nil, err
		}
	}

	scheduler := services.NewCronStageScheduler(tenderID, cfg.Location(), cfg.Worker.MisfireGrace, journal, log)

	w.controller, err = services.NewLifecycleController(services.ControllerConfig{
		TenderID:           tenderID,
		APIVersion:         cfg.Worker.ResourceAPIVersion,
		APIToken:           cfg.Worker.ResourceAPIToken,
		UseAPI:             useAPI,
		SandboxMode:        cfg.Worker.SandboxMode,
		Retry:              utils.RetryPolicy{Attempts: cfg.Retry.Attempts, Delay: cfg.Retry.Delay},
		ConflictRetries:    cfg.Store.ConflictRetries,
		Planner:            services.NewStagePlanner(cfg.Stages),
		FastForwardPlanner: services.NewFastForwardPlanner(cfg.Stages),
		AuctionData:        auctionData,
	}, store, client, scheduler, publisher, log)
	if err != nil {
		w.Close()
		return nil, err
	}

	return w, nil
}

func (w *worker) Close() {
	if w.controller != nil {
		if err := w.controller.Close(); err != nil {
			w.log.Error("Failed to stop scheduler", "error", err)
		}
	}
	if err := w.connManager.CloseAndUnregisterConnections(w.tenderID); err != nil {
		w.log.Error("Failed to close feed connections", "error", err)
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			w.log.Error("Failed to close MySQL connection", "error", err)
		}
	}
	if w.rdb != nil {
		if err := w.rdb.Close(); err != nil {
			w.log.Error("Failed to close Redis connection", "error", err)
		}
	}
}
