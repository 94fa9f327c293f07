package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shelltide/shelltide/internal/config"
	"github.com/shelltide/shelltide/internal/platform"
	"github.com/shelltide/shelltide/internal/wizard"
)

var (
	loginURL            string
	loginServiceAccount string
	loginServiceKey     string
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginURL, "url", "", "Platform URL")
	loginCmd.Flags().StringVar(&loginServiceAccount, "service-account", "", "Service account email")
	loginCmd.Flags().StringVar(&loginServiceKey, "service-key", "", "Service account key")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the platform and store credentials",
	Long: `Authenticate against the platform and store credentials in the config
directory. Without flags an interactive wizard collects them; pass --url,
--service-account and --service-key for non-interactive use (CI).`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	s, err := store()
	if err != nil {
		return err
	}

	save := func(url, account, key, token string) error {
		cfg, err := s.Load()
		if err != nil {
			return err
		}
		cfg.Credentials = &config.Credentials{
			URL:            url,
			ServiceAccount: account,
			ServiceKey:     key,
			AccessToken:    token,
		}
		return s.Save(cfg)
	}

	if loginURL != "" || loginServiceAccount != "" || loginServiceKey != "" {
		if err := wizard.ValidateURL(loginURL); err != nil {
			return err
		}
		if err := wizard.ValidateServiceAccount(loginServiceAccount); err != nil {
			return err
		}
		if err := wizard.ValidateServiceKey(loginServiceKey); err != nil {
			return err
		}
		token, err := platform.Login(cmd.Context(), loginURL, loginServiceAccount, loginServiceKey)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := save(loginURL, loginServiceAccount, loginServiceKey, token); err != nil {
			return err
		}
		fmt.Printf("Logged in to %s as %s\n", loginURL, loginServiceAccount)
		return nil
	}

	defaultURL := ""
	if cfg, err := s.Load(); err == nil && cfg.Credentials != nil {
		defaultURL = cfg.Credentials.URL
	}
	res, err := wizard.Run(platform.Login, save, defaultURL)
	if err != nil {
		return err
	}
	if !res.LoggedIn {
		fmt.Println("Login cancelled.")
	}
	return nil
}
