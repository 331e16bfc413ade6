package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"pkgforge/bot/build"
	"pkgforge/bot/copr"
	"pkgforge/bot/forge"
	"pkgforge/bot/queue"
	"pkgforge/bot/schema"
	"pkgforge/bot/service"
	"pkgforge/bot/srpm"
	"pkgforge/bot/tasks"
	"pkgforge/utils/logging"

	"github.com/caarlos0/env/v10"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type workerEnv struct {
	DatabaseUri string `env:"DATABASE_URI,required"`

	ServiceBaseURL string `env:"SERVICE_BASE_URL,required"`
	Deployment     string `env:"DEPLOYMENT" envDefault:"prod"`

	ForgeURL   string `env:"FORGE_URL,required"`
	ForgeToken string `env:"FORGE_TOKEN,required"`

	CoprURL          string `env:"COPR_URL,required"`
	CoprToken        string `env:"COPR_TOKEN,required"`
	CoprOwner        string `env:"COPR_OWNER"`
	CoprServiceOwner string `env:"COPR_SERVICE_OWNER" envDefault:"pkgforge"`

	KafkaBrokers string `env:"KAFKA_BROKERS,required"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"pkgforge-tasks"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"pkgforge-worker"`

	Kubeconfig    string `env:"KUBECONFIG"`
	SrpmNamespace string `env:"SRPM_NAMESPACE" envDefault:"pkgforge"`
	SrpmImage     string `env:"SRPM_IMAGE,required"`
	SrpmPvc       string `env:"SRPM_PVC,required"`

	ShareDir string `env:"SHARE_DIR,required"`

	JwtSecret     string `env:"JWT_SECRET,required"`
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`

	RetriggerCommand string `env:"RETRIGGER_COMMAND" envDefault:"/pkgforge copr-build"`

	ShipLogs bool `env:"SHIP_LOGS" envDefault:"false"`

	// Origin allowed to call the public endpoints, e.g. the forge UI.
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`
}

/**
 * ==========================================================================
 * ==== All variables that are used by the worker must be loaded here.   ====
 * ==== This is to make the data flow clear so that a user can see what  ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func loadEnv() (*workerEnv, error) {
	cfg := &workerEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFile(envFile string) {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	err := godotenv.Load(envFile)
	if err != nil {
		log.Fatalf("error loading .env file '%v': %v", envFile, err)
	}
}

func initLogging(logFile *os.File, shipLogs bool) {
	log.SetFlags(log.Lshortfile | log.Ltime | log.Ldate)
	out := io.MultiWriter(logFile, os.Stderr)
	log.SetOutput(out)
	logging.Setup(out, shipLogs)
	slog.Info("logging initialized", "log_file", logFile.Name())
}

func initDb(databaseUri string) *gorm.DB {
	dsn := postgresDsn(databaseUri)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("error opening database connection: %v", err)
	}

	err = db.AutoMigrate(schema.AllModels()...)
	if err != nil {
		log.Fatalf("error migrating db schema: %v", err)
	}

	return db
}

func postgresDsn(databaseUri string) string {
	parts, err := url.Parse(databaseUri)
	if err != nil {
		log.Fatalf("error parsing db uri: %v", err)
	}
	pwd, _ := parts.User.Password()
	dbname := strings.TrimPrefix(parts.Path, "/")
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v", parts.Hostname(), parts.User.Username(), pwd, dbname, parts.Port())
}

func kubeClientset(kubeconfig string) (*kubernetes.Clientset, error) {
	var cfg *rest.Config
	var err error

	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("error loading kubernetes config: %w", err)
	}

	return kubernetes.NewForConfig(cfg)
}

func main() {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		loadEnvFile(*envFile)
	}
	env, err := loadEnv()
	if err != nil {
		log.Fatalf("error loading env variables: %v", err)
	}

	err = os.MkdirAll(filepath.Join(env.ShareDir, "logs/"), 0777)
	if err != nil {
		log.Fatalf("error creating log dir: %v", err)
	}

	logFile, err := os.OpenFile(filepath.Join(env.ShareDir, "logs/worker.log"), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer logFile.Close()

	initLogging(logFile, env.ShipLogs)

	db := initDb(env.DatabaseUri)

	clientset, err := kubeClientset(env.Kubeconfig)
	if err != nil {
		log.Fatalf("error creating kubernetes client: %v", err)
	}
	builder := srpm.NewKubeBuilder(clientset, env.SrpmNamespace, env.SrpmImage, env.SrpmPvc, env.ShareDir)

	coprClient := copr.NewHttpClient(env.CoprURL, env.CoprToken, env.CoprOwner)

	forgeFor := forge.Factory(func(namespace, repo string) forge.Client {
		return forge.NewPagureClient(env.ForgeURL, env.ForgeToken, namespace, repo)
	})

	brokers := strings.Split(env.KafkaBrokers, ",")
	taskQueue := queue.NewKafkaQueue(brokers, env.KafkaTopic)
	defer taskQueue.Close()

	consumer := queue.NewKafkaConsumer(brokers, env.KafkaTopic, env.KafkaGroupID)
	defer consumer.Close()

	serviceCfg := build.ServiceConfig{
		ServiceAccount:   env.CoprServiceOwner,
		Deployment:       env.Deployment,
		BaseURL:          env.ServiceBaseURL,
		RetriggerCommand: env.RetriggerCommand,
	}

	runner := tasks.NewRunner(serviceCfg, db, coprClient, taskQueue, builder, forgeFor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		err := consumer.Consume(ctx, runner.Handle)
		if err != nil && ctx.Err() == nil {
			log.Fatalf("task consumer stopped: %v", err)
		}
	}()

	api := service.New(db, serviceCfg, forgeFor, taskQueue, []byte(env.JwtSecret), []byte(env.WebhookSecret))

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{env.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Mount("/", api.Routes())

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("starting worker server", "addr", addr)

	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down worker server")
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("error shutting down server", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
