package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"larpledger/internal/accounting"
	"larpledger/internal/config"
	"larpledger/internal/db"
	"larpledger/internal/gateway"
	"larpledger/internal/invoice"
	"larpledger/internal/logger"
	"larpledger/internal/member"
	"larpledger/internal/notify"
	"larpledger/internal/server"
)

func main() {
	logger.Init()
	logger.Info("Starting larpledger")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	notifyService := notify.New(
		cfg.AdminEmail,
		cfg.EmailFrom,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)
	defer notifyService.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go notifyService.Start(ctx)

	acctCfg := accounting.Config{
		AssocID: cfg.AssocID,
		Features: accounting.Features{
			Payment:          true,
			Membership:       cfg.FeatureMembership,
			MembershipExempt: cfg.FeatureMembershipExempt,
			TokenCredit:      cfg.FeatureTokenCredit,
			InstallmentPlan:  cfg.FeatureInstallments,
			EInvoice:         cfg.FeatureEInvoice,
		},
		AlertDays: cfg.PaymentAlertDays,
	}

	acctRepo := accounting.NewRepository(database)
	acctService := accounting.NewService(acctRepo)

	invoiceRepo := invoice.NewRepository(database)
	invoiceService := invoice.NewService(invoiceRepo, acctService, notifyService, invoice.FeeConfig{
		Percent:     feeSchedule(cfg),
		FeesToPayer: cfg.FeesToPayer,
	})

	registry := gateway.NewRegistry(buildProviders(cfg, invoiceRepo, notifyService)...)

	memberService := member.NewService(member.NewRepository(database), cfg.JWTSecret)

	handlers := server.Handlers{
		Accounting: accounting.NewHandler(acctService, acctCfg),
		Invoices:   invoice.NewHandler(invoiceService, acctCfg),
		Gateways:   gateway.NewHandler(registry, invoiceService, acctCfg),
		Members:    member.NewHandler(memberService),
		Registry:   registry,
	}

	srv := server.New(database, cfg, notifyService, handlers)

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(cfg.Port); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

func feeSchedule(cfg *config.Config) map[invoice.Method]decimal.Decimal {
	fees := make(map[invoice.Method]decimal.Decimal)
	for method, raw := range map[invoice.Method]string{
		invoice.MethodPayPal:   cfg.PayPalFeePct,
		invoice.MethodStripe:   cfg.StripeFeePct,
		invoice.MethodSumUp:    cfg.SumUpFeePct,
		invoice.MethodSatispay: cfg.SatispayFeePct,
		invoice.MethodRedsys:   cfg.RedsysFeePct,
	} {
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Fatalf("Invalid fee percentage for %s: %v", method, err)
		}
		if !pct.IsZero() {
			fees[method] = pct
		}
	}
	return fees
}

// buildProviders registers only the gateways with credentials configured.
// An unconfigured method gets no webhook route and no payment option.
func buildProviders(cfg *config.Config, keys gateway.KeyStore, alerts gateway.Alerter) []gateway.Provider {
	var providers []gateway.Provider

	if cfg.PayPalBusiness != "" {
		providers = append(providers, gateway.NewPayPal(cfg.PayPalBusiness, cfg.PayPalSandbox, cfg.BaseURL, alerts))
	}
	if cfg.StripeSecretKey != "" {
		providers = append(providers, gateway.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.BaseURL, keys))
	}
	if cfg.SumUpClientID != "" {
		providers = append(providers, gateway.NewSumUp(cfg.SumUpClientID, cfg.SumUpClientSecret, cfg.SumUpMerchantCode, cfg.BaseURL, keys))
	}
	if cfg.SatispayKeyID != "" {
		sp, err := gateway.NewSatispay(cfg.SatispayKeyID, cfg.SatispayPrivateKey, cfg.SatispaySandbox, cfg.BaseURL, keys)
		if err != nil {
			logger.Fatalf("Satispay configuration invalid: %v", err)
		}
		providers = append(providers, sp)
	}
	if cfg.RedsysMerchantCode != "" {
		providers = append(providers, gateway.NewRedsys(
			cfg.RedsysMerchantCode,
			cfg.RedsysTerminal,
			cfg.RedsysSecretKey,
			cfg.RedsysSandbox,
			cfg.RedsysEnforceSignature,
			cfg.BaseURL,
			alerts,
			keys,
		))
	}

	return providers
}
