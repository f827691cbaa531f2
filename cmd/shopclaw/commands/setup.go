package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/channels"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/spf13/cobra"
)

// newSetupCmd creates the `shopclaw setup` wizard.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Asks for the shop name, Shopify store, reasoning backend key and
channel modes, then writes config.yaml. Secrets are written as ${VAR}
references and can be kept in the OS keyring instead.

Examples:
  shopclaw setup
  shopclaw setup --output ./configs/config.yaml`,
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the config")
	return cmd
}

// setupAnswers collects the wizard fields.
type setupAnswers struct {
	name          string
	storeDomain   string
	shopifyToken  string
	apiKey        string
	model         string
	whatsappMode  string
	verifyToken   string
	waToken       string
	phoneNumberID string
	adminToken    string
	useKeyring    bool
}

func runSetup(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("output")
	cfg := copilot.DefaultConfig()

	ans := setupAnswers{
		name:         cfg.Name,
		model:        cfg.API.Model,
		whatsappMode: cfg.Channels.WhatsApp.Mode,
		useKeyring:   copilot.KeyringAvailable(),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Shop name").Value(&ans.name).Validate(required("shop name")),
			huh.NewInput().
				Title("Shopify store domain").
				Description("Bare host, e.g. moda-masal.myshopify.com").
				Value(&ans.storeDomain).
				Validate(validateDomain),
			huh.NewInput().
				Title("Shopify Admin API access token").
				EchoMode(huh.EchoModePassword).
				Value(&ans.shopifyToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gemini API key").
				EchoMode(huh.EchoModePassword).
				Value(&ans.apiKey),
			huh.NewInput().Title("Model").Value(&ans.model),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("WhatsApp mode").
				Options(
					huh.NewOption("Meta Cloud API (webhook)", string(channels.ModeCloud)),
					huh.NewOption("Linked device (QR code)", string(channels.ModeLinked)),
					huh.NewOption("Mock (log replies only)", string(channels.ModeMock)),
					huh.NewOption("Disabled", string(channels.ModeDisabled)),
				).
				Value(&ans.whatsappMode),
			huh.NewInput().Title("Webhook verify token").Value(&ans.verifyToken),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("WhatsApp Cloud access token").
				EchoMode(huh.EchoModePassword).
				Value(&ans.waToken),
			huh.NewInput().Title("WhatsApp phone number id").Value(&ans.phoneNumberID),
		).WithHideFunc(func() bool { return ans.whatsappMode != string(channels.ModeCloud) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Admin API token").
				Description("Protects /api/v1/admin. Leave empty to disable.").
				EchoMode(huh.EchoModePassword).
				Value(&ans.adminToken),
			huh.NewConfirm().
				Title("Store secrets in the OS keyring?").
				Value(&ans.useKeyring),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup: %w", err)
	}

	applyAnswers(cfg, ans)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid answers: %w", err)
	}

	if ans.useKeyring {
		for name, value := range map[string]string{
			copilot.KeyringAPIKey:        ans.apiKey,
			copilot.KeyringShopifyToken:  ans.shopifyToken,
			copilot.KeyringWhatsAppToken: ans.waToken,
		} {
			if value == "" {
				continue
			}
			if err := copilot.StoreKeyring(name, value); err != nil {
				return fmt.Errorf("storing %s in keyring: %w", name, err)
			}
		}
		// The keyring is consulted when the config leaves these empty.
		cfg.API.APIKey = ""
		cfg.Shopify.AccessToken = ""
		cfg.Channels.WhatsApp.AccessToken = ""
	}

	if err := copilot.SaveConfigToFile(cfg, path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config written to %s\n", path)
	if !ans.useKeyring {
		fmt.Fprintf(out, "Export %s, %s and %s (or add them to .env) before running.\n",
			copilot.EnvGeminiKey, copilot.EnvShopifyToken, copilot.EnvWhatsAppToken)
	}
	fmt.Fprintln(out, "Start with: shopclaw serve")
	return nil
}

// applyAnswers copies the wizard answers into cfg.
func applyAnswers(cfg *copilot.Config, ans setupAnswers) {
	cfg.Name = strings.TrimSpace(ans.name)
	cfg.Shopify.StoreDomain = strings.TrimSpace(ans.storeDomain)
	cfg.Shopify.AccessToken = strings.TrimSpace(ans.shopifyToken)
	cfg.API.APIKey = strings.TrimSpace(ans.apiKey)
	if m := strings.TrimSpace(ans.model); m != "" {
		cfg.API.Model = m
	}
	cfg.Channels.WhatsApp.Mode = ans.whatsappMode
	cfg.Channels.WhatsApp.VerifyToken = strings.TrimSpace(ans.verifyToken)
	cfg.Channels.Instagram.VerifyToken = strings.TrimSpace(ans.verifyToken)
	if ans.whatsappMode == string(channels.ModeCloud) {
		cfg.Channels.WhatsApp.AccessToken = strings.TrimSpace(ans.waToken)
		cfg.Channels.WhatsApp.PhoneNumberID = strings.TrimSpace(ans.phoneNumberID)
	}
	cfg.Gateway.AdminToken = strings.TrimSpace(ans.adminToken)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateDomain(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("store domain is required")
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return errors.New("enter the host without http:// or https://")
	}
	return nil
}
