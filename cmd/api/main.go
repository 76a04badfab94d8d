package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/storeops/cart-recovery/internal/abandonment"
	internalaws "github.com/storeops/cart-recovery/internal/aws"
	"github.com/storeops/cart-recovery/internal/backends"
	"github.com/storeops/cart-recovery/internal/carts"
	"github.com/storeops/cart-recovery/internal/checkouts"
	"github.com/storeops/cart-recovery/internal/handlers"
	"github.com/storeops/cart-recovery/internal/recovery"
	"github.com/storeops/cart-recovery/internal/templates"
	"github.com/storeops/cart-recovery/pkg/config"
	"github.com/storeops/cart-recovery/pkg/logger"
	"github.com/storeops/cart-recovery/pkg/shutdown"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterCartRoutes(r, cfg)
	handlers.RegisterCheckoutRoutes(r, cfg)
	handlers.RegisterRecoveryRoutes(r, cfg)

	return r
}

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "cart-recovery",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	clients, err := internalaws.NewAWSClients(ctx)
	if err != nil {
		log.Error("failed to init aws clients", "error", err)
		os.Exit(1)
	}

	// The cart and checkout stores are in-process state with a single
	// logical owner; the log repository is durable when a table is
	// configured.
	var logs abandonment.LogRepo
	if cfg.LogsTable != "" {
		logs = abandonment.NewDynamoLogRepo(clients.DynamoDB, cfg.LogsTable)
	} else {
		logs = abandonment.NewMemoryLogRepo()
	}

	commerce := backends.NewHTTPCommerce(cfg.CommerceBaseURL)
	cartStore := carts.NewStore()
	checkoutStore := checkouts.NewStore(cartStore, commerce)

	sweeper, err := abandonment.NewSweeper(cartStore, checkoutStore, logs, cfg.CartTimeout, cfg.CheckoutTimeout, log)
	if err != nil {
		log.Error("invalid sweeper configuration", "error", err)
		os.Exit(1)
	}
	if cfg.LogsTable != "" {
		sweeper.WithMetrics(internalaws.NewSweepMetrics(clients.CloudWatch, cfg.MetricNamespace, log))
	}

	var provider recovery.TemplateProvider
	if cfg.TemplatesPath != "" {
		provider = templates.NewFileProvider(cfg.TemplatesPath)
	} else {
		provider = templates.StaticProvider{
			{Name: "reminder", Kind: recovery.KindTransactional,
				Content: "Oi {name}! Seu pedido ({product_list}) ainda está te esperando: {checkout_link}"},
		}
	}

	composer := recovery.NewComposer(logs, cfg.CheckoutLinkBase).WithCurrency(cfg.CurrencySymbol)
	dispatcher := recovery.NewDispatcher(composer, provider, logs,
		internalaws.NewPublisher(clients.SQS, cfg.RecoveryQueue), log)

	r := setupRouter(handlers.HandlerConfig{
		Carts:      cartStore,
		Checkouts:  checkoutStore,
		Logs:       logs,
		Composer:   composer,
		Dispatcher: dispatcher,
		Templates:  provider,
		Shipping:   commerce,
		Logger:     log,
	})

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		srv := &http.Server{Addr: addr, Handler: r}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("running local server", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			err := sweeper.Run(gctx, cfg.SweepInterval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if err := g.Wait(); err != nil {
			log.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	// Lambda mode: the execution environment is reused between
	// invocations, so the sweeper keeps ticking while the container is
	// warm.
	go func() {
		if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper exited", "error", err)
		}
	}()

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
