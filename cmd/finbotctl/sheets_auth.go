package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"finbot/internal/source/google"
)

// newSheetsAuthCmd runs the OAuth consent flow for the sheets backend and
// stores the resulting refresh token as a credentials file.
func newSheetsAuthCmd(a *app) *cobra.Command {
	var (
		clientFile string
		output     string
		port       int
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Autoriza el acceso de lectura a Google Sheets con tu cuenta",
		Args:  cobra.NoArgs,
		// needs no backend
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientJSON := []byte(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
			if clientFile != "" {
				data, err := os.ReadFile(clientFile)
				if err != nil {
					return fmt.Errorf("read oauth client: %w", err)
				}
				clientJSON = data
			}
			if len(clientJSON) == 0 {
				return errors.New("set --client-file or GOOGLE_OAUTH_CLIENT_JSON")
			}
			cfg, err := google.OAuthConfig(clientJSON, fmt.Sprintf("http://localhost:%d/callback", port))
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return fmt.Errorf("listen for oauth callback: %w", err)
			}
			state := uuid.NewString()
			codes := make(chan callbackResult, 1)
			srv := &http.Server{Handler: callbackHandler(state, codes), ReadHeaderTimeout: 10 * time.Second}
			go func() { _ = srv.Serve(ln) }()
			defer srv.Close()

			a.printf("Abre esta URL para autorizar:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			var res callbackResult
			select {
			case res = <-codes:
			case <-ctx.Done():
				return fmt.Errorf("authorization not completed: %w", ctx.Err())
			}
			if res.err != nil {
				return res.err
			}

			tok, err := cfg.Exchange(ctx, res.code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			creds, err := google.AuthorizedUserJSON(cfg, tok)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, creds, 0o600); err != nil {
				return fmt.Errorf("write credentials: %w", err)
			}
			a.printf("Credenciales guardadas en %s. Usa GOOGLE_CREDENTIALS_FILE=%s con DATA_BACKEND=sheets.\n", output, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&clientFile, "client-file", os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"), "JSON del cliente OAuth")
	cmd.Flags().StringVarP(&output, "output", "o", "google-credentials.json", "archivo de credenciales a escribir")
	cmd.Flags().IntVar(&port, "port", 8085, "puerto local para el callback")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "tiempo máximo de espera")
	return cmd
}

type callbackResult struct {
	code string
	err  error
}

// callbackHandler accepts one redirect carrying the expected state and
// forwards its code. Later requests are ignored.
func callbackHandler(state string, out chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("oauth error: %s", q.Get("error"))
			http.Error(w, "La autorización fue rechazada.", http.StatusBadRequest)
		case q.Get("state") != state:
			http.Error(w, "Estado inválido.", http.StatusBadRequest)
			return
		case q.Get("code") == "":
			http.Error(w, "Falta el código.", http.StatusBadRequest)
			return
		default:
			res.code = q.Get("code")
			fmt.Fprintln(w, "Listo. Puedes cerrar esta ventana y volver a la terminal.")
		}
		select {
		case out <- res:
		default:
		}
	})
	return mux
}
