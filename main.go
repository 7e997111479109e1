package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-michi/michi"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/handlers"
	_ "github.com/lib/pq"

	"fishmarket/config"
	"fishmarket/controllers"
	"fishmarket/database"
	"fishmarket/images"
	"fishmarket/models"
	"fishmarket/sms"
	"fishmarket/token"
	"fishmarket/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(utils.ErrorWithTrace(err, err.Error()))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatal(utils.ErrorWithTrace(err, err.Error()))
	}
	defer db.Close()

	// Handle migrations
	mig, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.URL)
	if err != nil {
		log.Fatal(utils.ErrorWithTrace(err, err.Error()))
	}
	if err := mig.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal(utils.ErrorWithTrace(err, err.Error()))
		}
		log.Printf("migrations: %s", err.Error())
	}

	imageHost := images.NewDiskHost(cfg.Uploads.Dir, cfg.Server.BaseURL, cfg.Uploads.MaxWidth)
	sender := sms.NewFromConfig(&cfg.SMS)
	tokens := token.NewManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	c := controllers.New(db, tokens, sender, imageHost, cfg.Auth.OTPTTL)

	r := michi.NewRouter()
	r.Handle("/uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Uploads.Dir))))
	r.HandleFunc("GET /health", c.Health)

	r.Route("/auth", func(sub *michi.Router) {
		sub.HandleFunc("POST signup", c.Signup)
		sub.HandleFunc("POST verify-otp", c.VerifyOTP)
		sub.HandleFunc("POST resend-otp", c.ResendOTP)
		sub.HandleFunc("POST login", c.Login)
	})

	r.Route("/accounts", func(sub *michi.Router) {
		sub.HandleFunc("GET profile", c.RequireAuth(c.Profile))
		sub.HandleFunc("PUT profile", c.RequireAuth(c.UpdateProfile))

		sub.HandleFunc("POST admins", c.RequireAuth(c.RequireRoles(c.CreateAdmin, models.RoleSuperadmin)))
		sub.HandleFunc("GET admins", c.RequireAuth(c.RequireRoles(c.ListAdmins, models.RoleSuperadmin)))
		sub.HandleFunc("GET admins/{id}", c.RequireAuth(c.RequireRoles(c.GetAdmin, models.RoleSuperadmin)))
		sub.HandleFunc("PUT admins/{id}", c.RequireAuth(c.RequireRoles(c.UpdateAdmin, models.RoleSuperadmin)))
		sub.HandleFunc("DELETE admins/{id}", c.RequireAuth(c.RequireRoles(c.DeleteAdmin, models.RoleSuperadmin)))

		sub.HandleFunc("GET sellers/pending", c.RequireAuth(c.RequireRoles(c.PendingSellers, models.RoleAdmin, models.RoleSuperadmin)))
		sub.HandleFunc("PUT sellers/{id}/approval", c.RequireAuth(c.RequireRoles(c.ReviewSeller, models.RoleAdmin, models.RoleSuperadmin)))
	})

	r.HandleFunc("GET /items", c.ListItems)
	r.HandleFunc("POST /items", c.RequireAuth(c.RequireRoles(c.CreateItem, models.RoleSeller)))
	r.Route("/items", func(sub *michi.Router) {
		sub.HandleFunc("GET {id}", c.GetItem)
		sub.HandleFunc("PUT {id}", c.RequireAuth(c.RequireRoles(c.UpdateItem, models.RoleSeller)))
		sub.HandleFunc("DELETE {id}", c.RequireAuth(c.RequireRoles(c.DeleteItem, models.RoleSeller)))
		sub.HandleFunc("PATCH {id}/status", c.RequireAuth(c.RequireRoles(c.SetItemStatus, models.RoleSeller)))
		sub.HandleFunc("POST {id}/sell", c.RequireAuth(c.RequireRoles(c.Sell, models.RoleSeller)))
		sub.HandleFunc("GET seller/{id}", c.ListBySeller)
		sub.HandleFunc("GET sold/seller/{id}", c.RequireAuth(c.SoldBySeller))
		sub.HandleFunc("GET sold/buyer/{id}", c.RequireAuth(c.PurchasesByBuyer))
	})

	r.HandleFunc("GET /cart", c.RequireAuth(c.RequireRoles(c.GetCart, models.RoleBuyer)))
	r.Route("/cart", func(sub *michi.Router) {
		sub.HandleFunc("POST add", c.RequireAuth(c.RequireRoles(c.AddToCart, models.RoleBuyer)))
		sub.HandleFunc("GET summary", c.RequireAuth(c.RequireRoles(c.CartSummary, models.RoleBuyer)))
		sub.HandleFunc("PUT update", c.RequireAuth(c.RequireRoles(c.UpdateCartLine, models.RoleBuyer)))
		sub.HandleFunc("DELETE remove/{itemId}", c.RequireAuth(c.RequireRoles(c.RemoveFromCart, models.RoleBuyer)))
		sub.HandleFunc("DELETE clear", c.RequireAuth(c.RequireRoles(c.ClearCart, models.RoleBuyer)))
	})

	// Enable CORS
	corsOptions := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      corsOptions(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	fmt.Printf("Server running on port %s 🚀\n", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(utils.ErrorWithTrace(err, err.Error()))
	}
}
