package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"agrilink-bend/api/admin"
	"agrilink-bend/api/buyer"
	"agrilink-bend/api/callbacks"
	"agrilink-bend/audit"
	"agrilink-bend/dao"
	"agrilink-bend/dispute"
	"agrilink-bend/ledger"
	"agrilink-bend/logger"
	"agrilink-bend/metrics"
	"agrilink-bend/models"
	"agrilink-bend/payout"
	"agrilink-bend/utils"
	"agrilink-bend/utils/notifications"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	userDAO        *dao.UserDAO
	orderDAO       *dao.OrderDAO
	batchDAO       *dao.BatchDAO
	disputeDAO     *dao.DisputeDAO
	payoutAuditDAO *dao.PayoutAuditDAO

	orderLedger  *ledger.Ledger
	workroom     *dispute.Workroom
	orchestrator *payout.Orchestrator
	auditView    *audit.View
	buyerService *buyer.Service
	adminService *admin.Service
	callbackSrv  *callbacks.Service

	log       *zap.Logger
	jwtSecret string
	dbname    = "agrilink"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found")
	}

	var err error
	if os.Getenv("ENV") == "dev" {
		log, err = logger.NewDevelopmentLogger()
	} else {
		log, err = logger.NewLogger(os.Getenv("LOG_LEVEL"))
	}
	if err != nil {
		fmt.Printf("failed to initialize logger, err: %v\n", err)
		return
	}
	defer log.Sync()

	jwtSecret = os.Getenv("SECRET")

	client, err := initDatabase()
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
		return
	}

	defer func() {
		if err = client.Disconnect(context.TODO()); err != nil {
			log.Fatal("database disconnect failed", zap.Error(err))
		}
	}()

	initServices()

	r := initRoutes()
	r.Use(func(next http.Handler) http.Handler {
		return handlers.LoggingHandler(os.Stdout, next)
	})

	// background services
	go autoCancellationJob()
	go scheduledBatchReleaseJob()

	port := os.Getenv("PORT")
	log.Info("running server", zap.String("port", port))

	header := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	methods := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "HEAD", "OPTIONS"})
	origins := handlers.AllowedOrigins([]string{"*"})

	h := handlers.CORS(header, methods, origins)
	if err := http.ListenAndServe(":"+port, h(r)); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func initRoutes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok", "message": "agrilink-bend"}`))
	})
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	batchesRouter := v1.PathPrefix("/batches").Subrouter()
	ordersRouter := v1.PathPrefix("/orders").Subrouter()
	adminRouter := v1.PathPrefix("/admin").Subrouter()
	callbacksRouter := v1.PathPrefix("/callbacks").Subrouter()

	// callbacks
	callbacksRouter.HandleFunc("/payments", callbackSrv.PaymentWebhook).Methods("POST")
	callbacksRouter.HandleFunc("/paypal-confirm", callbackSrv.ConfirmPaypalPayment).Methods("POST")

	// batches
	batchesRouter.HandleFunc("", useAuth(buyerService.ListBatches)).Methods("GET")
	batchesRouter.HandleFunc("/{id}/quote", useAuth(buyerService.GetQuote)).Methods("GET")

	// orders
	ordersRouter.HandleFunc("", useAuth(buyerService.GetUserOrders)).Methods("GET")
	ordersRouter.HandleFunc("", useAuth(buyerService.CreateOrder)).Methods("POST")
	ordersRouter.HandleFunc("/{id}", useAuth(buyerService.ViewOrder)).Methods("GET")
	ordersRouter.HandleFunc("/{id}/checkout-session", useAuth(buyerService.CreateCheckoutSession)).Methods("POST")
	ordersRouter.HandleFunc("/{id}/release-escrow", useAuth(buyerService.ReleaseEscrow)).Methods("POST")
	ordersRouter.HandleFunc("/{id}/cancel", useAuth(buyerService.CancelOrder)).Methods("PUT")

	// admin
	adminRouter.HandleFunc("/overview", useRole(adminService.GetOverview, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/escrow-audit", useRole(adminService.GetEscrowAudit, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/orders", useRole(adminService.ListOrders, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/orders/{id}/trail", useRole(adminService.GetOrderTrail, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/orders/{id}/tracking", useRole(adminService.AdvanceTracking, models.RoleUserAdmin)).Methods("PUT")
	adminRouter.HandleFunc("/orders/{id}/release", useRole(adminService.ReleaseEscrow, models.RoleUserAdmin)).Methods("POST")
	adminRouter.HandleFunc("/orders/{id}/retry-release", useRole(adminService.RetryRelease, models.RoleUserAdmin)).Methods("POST")
	adminRouter.HandleFunc("/orders/{id}/cancel", useRole(adminService.CancelOrder, models.RoleUserAdmin)).Methods("PUT")
	adminRouter.HandleFunc("/escrow-audit/release-batch-payouts", useRole(adminService.BatchRelease, models.RoleUserAdmin)).Methods("POST")
	adminRouter.HandleFunc("/hubs-disputes", useRole(adminService.GetHubsDisputes, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/disputes", useRole(adminService.ListDisputes, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/disputes", useRole(adminService.CreateDispute, models.RoleUserAdmin)).Methods("POST")
	adminRouter.HandleFunc("/disputes/{id}", useRole(adminService.GetDispute, models.RoleUserAdmin)).Methods("GET")
	adminRouter.HandleFunc("/disputes/{id}/review", useRole(adminService.ReviewDispute, models.RoleUserAdmin)).Methods("PATCH")

	return r
}

func initDatabase() (*mongo.Client, error) {
	dbURI := os.Getenv("MONGO_URI")
	if dbURI == "" {
		return nil, errors.New("MONGO_URI not set")
	}

	client, ctx, err := dao.Initialize(dbURI)
	if err != nil {
		return nil, err
	}

	initCollections(ctx, client)

	return client, nil
}

func initCollections(ctx context.Context, client *mongo.Client) {
	db := client.Database(dbname)
	userDAO = dao.NewUserDAO(ctx, db)
	orderDAO = dao.NewOrderDAO(ctx, db)
	batchDAO = dao.NewBatchDAO(ctx, db)
	disputeDAO = dao.NewDisputeDAO(ctx, db)
	payoutAuditDAO = dao.NewPayoutAuditDAO(ctx, db)

	if err := disputeDAO.EnsureIndexes(context.Background()); err != nil {
		log.Error("dispute index creation failed", zap.Error(err))
	}
}

func initServices() {
	notifier, err := notifications.NewNotifiable(userDAO)
	if err != nil {
		log.Fatal("notifiable_init", zap.Error(err))
		return
	}

	orderLedger = ledger.New(orderDAO, batchDAO, userDAO, log)
	workroom = dispute.New(disputeDAO, log)
	executor := payout.NewExecutor(payoutAuditDAO, userDAO, log)
	orchestrator = payout.NewOrchestrator(orderLedger, workroom, executor, notifier, log)
	auditView = audit.NewView(orderDAO, payoutAuditDAO, log)

	buyerService = buyer.NewBuyerService(orderLedger, orderDAO, batchDAO, orchestrator, userDAO, log)
	adminService = admin.NewAdminService(orderLedger, workroom, orchestrator, auditView, orderDAO, userDAO, log)
	callbackSrv = callbacks.NewCallbacksService(orderLedger, orderDAO, userDAO, log)
}

// autoCancellationJob cancels orders stuck awaiting payment past the window
func autoCancellationJob() {
	ttl := 48 * time.Hour
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cancelled := orderLedger.AutoCancelStale(context.Background(), ttl)
		if cancelled > 0 {
			log.Info("auto-cancelled stale orders", zap.Int("count", cancelled))
		}
	}
}

// scheduledBatchReleaseJob runs the payout orchestrator on a fixed cadence
// when enabled.
func scheduledBatchReleaseJob() {
	if os.Getenv("BATCH_RELEASE_ENABLED") != "true" {
		return
	}

	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		report, err := orchestrator.Run(context.Background(), models.SystemActorID, 0)
		if err != nil {
			log.Error("scheduled batch release failed", zap.Error(err))
			continue
		}
		log.Info("scheduled batch release finished",
			zap.String("run_id", report.RunID),
			zap.Int("released", report.ReleasedCount),
			zap.Int("failed", report.FailedCount),
			zap.Int("skipped", report.SkippedCount))
	}
}

// useAuth validates a token for protected routes
func useAuth(nextHandler http.HandlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorizationHeader := r.Header.Get("Authorization")
		if authorizationHeader == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, models.CodeUnauthorized, "You are not authorized")
			return
		}
		token, err := jwt.Parse(authorizationHeader, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("Unexpected signing method: %v", token.Header["alg"])
			}

			return []byte(jwtSecret), nil
		})
		if err != nil {
			log.Warn("auth parse failed", zap.Error(err))
			utils.RespondWithError(w, http.StatusUnauthorized, models.CodeUnauthorized, "You are not authorized")
			return
		}

		var userIDKey = models.ContextKey("user_id")
		var userRoleKey = models.ContextKey("user_role")

		if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
			var id, role string
			id, ok = claims["id"].(string)
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, models.CodeUnauthorized, "Error converting claim to string")
				return
			}
			role, _ = claims["role"].(string)

			ctx := context.WithValue(r.Context(), userIDKey, id)
			rctx := context.WithValue(ctx, userRoleKey, role)

			nextHandler.ServeHTTP(w, r.WithContext(rctx))
			return
		}

		utils.RespondWithError(w, http.StatusUnauthorized, models.CodeUnauthorized, "An authorized error occurred")
	})
}

// useRole restricts a route to one user role on top of useAuth
func useRole(nextHandler http.HandlerFunc, role string) http.HandlerFunc {
	return useAuth(func(w http.ResponseWriter, r *http.Request) {
		got, _ := r.Context().Value(models.ContextKey("user_role")).(string)
		if got != role {
			utils.RespondWithError(w, http.StatusForbidden, models.CodeForbidden, "You do not have access to this resource")
			return
		}
		nextHandler.ServeHTTP(w, r)
	})
}
