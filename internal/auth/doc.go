// Package auth provides accounts, sessions and API tokens.
//
// Web pages authenticate with a session cookie (scs, stored in SQLite) and
// are protected by CSRF tokens. The REST API authenticates with a bearer
// token obtained from POST /api/v1/token using HTTP Basic credentials.
//
// New accounts are inactive until the link of the activation mail is
// followed. The link carries an HS256 JWT with the user_id claim.
//
// # Configuration
//
//	AUTH_SECRET_KEY=<hex>          # Signs activation tokens and CSRF cookies, generated if empty
//	AUTH_SESSION_LIFETIME=24h      # Session duration
//	AUTH_TOKEN_EXPIRY=1h           # API token lifetime
//	AUTH_ACTIVATION_EXPIRY=90m     # Activation link lifetime
//	AUTH_BCRYPT_COST=12            # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true       # HTTPS-only cookies
//
// # Usage
//
//	authService := auth.NewService(users.NewRepository(db), cfg.Auth)
//	mw := auth.NewMiddleware(authService, sessionManager)
//	router.Use(sessionManager.SessionLoadSave(), mw.Handler())
//	router.GET("/admin/users", mw.RequireRole(entities.RoleAdmin, entities.RoleSuperuser), handler)
package auth
