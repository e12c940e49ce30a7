package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/krishivoice/krishi-sdk-go/pkg/krishi"
	"github.com/spf13/cobra"
)

var (
	verbose  bool
	token    string
	assist   string
	backend  string
	farmerID string
	language string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "krishi",
		Short: "Krishi voice assistant CLI",
		Long:  "A command-line interface for the Krishi farming-assistance SDK",
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for authentication")
	rootCmd.PersistentFlags().StringVar(&assist, "assist", "", "Assist service endpoint URL")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Persistence backend endpoint URL")
	rootCmd.PersistentFlags().StringVar(&farmerID, "farmer-id", "", "Farmer ID for the session")
	rootCmd.PersistentFlags().StringVar(&language, "lang", "", "Preferred language code (e.g. hi, mr, te)")

	// Add subcommands
	rootCmd.AddCommand(talkCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		krishi.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

func buildConfig() *krishi.Config {
	config := krishi.NewConfig()
	if assist != "" {
		config.AssistEndpoint = assist
	}
	if backend != "" {
		config.BackendEndpoint = backend
	}
	if language != "" {
		config.Language = language
	}

	if issues := config.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Printf("Config issue: %s\n", issue)
		}
		os.Exit(1)
	}
	return config
}

func buildTokens(config *krishi.Config) krishi.TokenSource {
	if token != "" {
		return krishi.StaticToken(token)
	}
	if config.TokenEndpoint != "" {
		return krishi.NewTokenManager(config.TokenEndpoint, config.Headers, config.TokenRefreshBuffer)
	}
	return nil
}

func talkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Run one voice turn",
		Long:  "Capture one utterance from the microphone, submit it, and play the spoken reply",
		Run: func(cmd *cobra.Command, args []string) {
			config := buildConfig()
			session := krishi.NewDefaultSession(config, buildTokens(config))

			session.AddMessageHandler(krishi.CreateTranscriptPrinter(os.Stdout))
			session.AddErrorHandler(krishi.CreateErrorLoggingHandler("Talk"))
			if verbose {
				session.AddStateHandler(krishi.CreateStateLoggingHandler(nil))
			}

			ctx := context.Background()
			session.Open(ctx, farmerID)
			defer session.Close()

			if kerr := session.StartListening(); kerr != nil {
				krishi.GetGlobalLogger().WithError(kerr).Fatal("Could not start capture")
			}

			fmt.Printf("Listening (up to %s)... press Enter to stop.\n", config.CaptureCeiling)
			enter := make(chan struct{})
			go func() {
				bufio.NewReader(os.Stdin).ReadString('\n')
				close(enter)
			}()

			select {
			case <-enter:
			case <-time.After(config.CaptureCeiling + time.Second):
			}

			if session.State() == krishi.StateListening {
				if kerr := session.StopListening(ctx); kerr != nil {
					krishi.GetGlobalLogger().WithError(kerr).Fatal("Could not complete capture")
				}
			}

			wctx, cancel := context.WithTimeout(ctx, config.TransportTimeout+60*time.Second)
			defer cancel()
			if err := session.WaitIdle(wctx); err != nil {
				fmt.Println("Turn did not finish in time")
				return
			}
			fmt.Println("\nTurn completed.")
		},
	}

	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [text]",
		Short: "Run one text turn",
		Long:  "Submit a text prompt over the assist contract and print the reply",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			config := buildConfig()
			transport := krishi.NewTransport(config, buildTokens(config))

			text := strings.Join(args, " ")
			ctx, cancel := context.WithTimeout(context.Background(), config.TransportTimeout)
			defer cancel()

			reply, kerr := transport.SubmitText(ctx, text, config.Language)
			if kerr != nil {
				krishi.GetGlobalLogger().WithError(kerr).Fatal("Chat request failed")
			}

			if reply.TranslatedText != "" && verbose {
				fmt.Printf("(understood as: %s)\n", reply.TranslatedText)
			}
			fmt.Println(reply.AssistantText)
		},
	}

	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored conversation history",
		Long:  "Fetch and print the stored transcript for a farmer, oldest first",
		Run: func(cmd *cobra.Command, args []string) {
			if farmerID == "" {
				fmt.Println("--farmer-id is required")
				os.Exit(1)
			}

			config := buildConfig()
			client := krishi.NewBackendClient(config, buildTokens(config))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res := client.ConversationHistory(ctx, farmerID)
			if !res.Success {
				krishi.GetGlobalLogger().WithError(res.Error).Fatal("History fetch failed")
			}

			if len(res.Data) == 0 {
				fmt.Println("No stored conversation.")
				return
			}
			printer := krishi.CreateTranscriptPrinter(os.Stdout)
			for _, msg := range res.Data {
				printer(msg)
			}
		},
	}

	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Farmer profile commands",
		Long:  "Fetch and update farmer profiles on the persistence backend",
	}

	cmd.AddCommand(profileGetCmd())
	cmd.AddCommand(profileUpdateCmd())

	return cmd
}

func profileGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a farmer profile",
		Run: func(cmd *cobra.Command, args []string) {
			if farmerID == "" {
				fmt.Println("--farmer-id is required")
				os.Exit(1)
			}

			config := buildConfig()
			client := krishi.NewBackendClient(config, buildTokens(config))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res := client.GetFarmer(ctx, farmerID)
			if !res.Success {
				krishi.GetGlobalLogger().WithError(res.Error).Fatal("Profile fetch failed")
			}

			p := res.Data
			fmt.Printf("Farmer: %s (%s)\n", p.Name, p.ID)
			if p.Village != "" {
				fmt.Printf("  Village: %s, %s, %s\n", p.Village, p.District, p.State)
			}
			if p.Language != "" {
				fmt.Printf("  Language: %s\n", p.Language)
			}
			if p.LandAreaHectares > 0 {
				fmt.Printf("  Land: %.2f ha, soil %s, irrigation %s\n", p.LandAreaHectares, p.SoilType, p.IrrigationType)
			}
			if len(p.Crops) > 0 {
				fmt.Printf("  Crops: %s\n", strings.Join(p.Crops, ", "))
			}
			if p.SoilPH > 0 {
				fmt.Printf("  Soil: pH %.1f, N %.0f ppm, P %.0f ppm, K %.0f ppm\n",
					p.SoilPH, p.NitrogenPPM, p.PhosphorusPPM, p.PotassiumPPM)
			}
		},
	}

	return cmd
}

func profileUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [field=value ...]",
		Short: "Update farmer profile fields",
		Long:  "Apply a partial update, e.g.: krishi profile update --farmer-id f123 soil_ph=6.5 soil_type=loam",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if farmerID == "" {
				fmt.Println("--farmer-id is required")
				os.Exit(1)
			}

			updates := make(map[string]interface{})
			for _, arg := range args {
				parts := strings.SplitN(arg, "=", 2)
				if len(parts) != 2 {
					fmt.Printf("Invalid field assignment: %s\n", arg)
					os.Exit(1)
				}
				if f, err := strconv.ParseFloat(parts[1], 64); err == nil {
					updates[parts[0]] = f
				} else {
					updates[parts[0]] = parts[1]
				}
			}

			config := buildConfig()
			client := krishi.NewBackendClient(config, buildTokens(config))

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			res := client.UpdateFarmer(ctx, farmerID, updates)
			if !res.Success {
				krishi.GetGlobalLogger().WithError(res.Error).Fatal("Profile update failed")
			}

			fmt.Printf("Updated %d field(s) for %s\n", len(updates), res.Data.Name)
		},
	}

	return cmd
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Audio device management",
		Long:  "Commands for listing and validating audio devices",
	}

	cmd.AddCommand(devicesListCmd())
	cmd.AddCommand(devicesTestCmd())

	return cmd
}

func devicesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Run: func(cmd *cobra.Command, args []string) {
			devices, err := krishi.ListAudioDevices()
			if err != nil {
				krishi.GetGlobalLogger().WithError(err).Error("Failed to list audio devices")
				fmt.Printf("Error listing devices: %v\n", err)
				return
			}

			fmt.Println("Available Audio Devices:")
			for _, device := range devices {
				marker := ""
				if device.IsDefault {
					marker = " (Default)"
				}

				capabilities := ""
				if device.IsInput && device.IsOutput {
					capabilities = "Input/Output"
				} else if device.IsInput {
					capabilities = "Input"
				} else if device.IsOutput {
					capabilities = "Output"
				}

				fmt.Printf("  %d: %s%s - %s (%.0f Hz)\n",
					device.ID, device.Name, marker, capabilities, device.DefaultSampleRate)
			}
		},
	}

	return cmd
}

func devicesTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test [device-id]",
		Short: "Validate a specific audio device",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			deviceID := 0
			if len(args) > 0 {
				fmt.Sscanf(args[0], "%d", &deviceID)
			}

			fmt.Printf("Validating audio device ID: %d\n", deviceID)

			if err := krishi.ValidateAudioDevice(deviceID, true, 1, 16000); err != nil {
				fmt.Printf("Device validation failed: %v\n", err)
				return
			}

			dm := krishi.NewDeviceManager()
			if err := dm.Initialize(); err != nil {
				fmt.Printf("Failed to initialize device manager: %v\n", err)
				return
			}
			defer dm.Cleanup()

			info, err := dm.DeviceInfo(deviceID)
			if err != nil {
				fmt.Printf("Failed to get device info: %v\n", err)
				return
			}

			fmt.Printf("\nDevice Information:\n%s\n", info)
			fmt.Println("Device is usable for capture.")
		},
	}

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long:  "Display the effective configuration from defaults, .env, environment, and flags",
		Run: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			config := buildConfig()

			fmt.Println("Current Configuration:")
			fmt.Printf("  Assist Endpoint: %s\n", config.AssistEndpoint)
			fmt.Printf("  Backend Endpoint: %s\n", config.BackendEndpoint)
			fmt.Printf("  Meter Endpoint: %s\n", config.MeterEndpoint)
			fmt.Printf("  Token Endpoint: %s\n", config.TokenEndpoint)
			fmt.Printf("  Token: %s\n", maskString(token))
			fmt.Printf("  Language: %s\n", config.Language)
			fmt.Printf("  Capture Ceiling: %s\n", config.CaptureCeiling)
			fmt.Printf("  Transport Timeout: %s\n", config.TransportTimeout)
			fmt.Printf("  Meter Interval: %s\n", config.MeterInterval)
			fmt.Printf("  Meter Reconnect Delay: %s\n", config.MeterReconnectDelay)
			fmt.Printf("  Verbose: %v\n", verbose)
		},
	}

	return cmd
}

func tokenCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development token commands",
	}

	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a short-lived development token",
		Run: func(cmd *cobra.Command, args []string) {
			if secret == "" {
				secret = os.Getenv("KRISHI_DEV_SECRET")
			}
			signed, expiresAt, err := krishi.MintDevToken(secret, farmerID)
			if err != nil {
				krishi.GetGlobalLogger().WithError(err).Fatal("Token minting failed")
			}
			fmt.Printf("Token: %s\n", signed)
			fmt.Printf("Expires: %s\n", expiresAt.Format(time.RFC3339))
		},
	}
	mint.Flags().StringVar(&secret, "secret", "", "Signing secret (or KRISHI_DEV_SECRET)")

	cmd.AddCommand(mint)
	return cmd
}

// Helper function to mask sensitive strings
func maskString(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
