package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/roombook/roombook-cli/internal/api"
	"github.com/roombook/roombook-cli/internal/auth"
	"github.com/roombook/roombook-cli/internal/buildinfo"
	"github.com/roombook/roombook-cli/internal/config"
	"github.com/roombook/roombook-cli/pkg/database"
)

var (
	configFile string
	hostname   string
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "roombook",
	Short: "Roombook CLI - browse rooms and manage bookings",
	Long: `Roombook CLI talks to the room booking API. The API location is derived
from the configured hostname: "localhost" selects the local development API,
any other host is reached at https://<host>/api.`,
	SilenceUsage: true,
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Show the API endpoints derived from the configured hostname",
	RunE:  showEndpoints,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("roombook %s\n", buildinfo.Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the configuration file",
	RunE:  initConfig,
}

// Room commands
var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Browse rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rooms",
	RunE:  listRooms,
}

var roomsGetCmd = &cobra.Command{
	Use:   "get [room-id]",
	Short: "Show a room",
	Args:  cobra.ExactArgs(1),
	RunE:  getRoom,
}

// Booking commands
var bookingsCmd = &cobra.Command{
	Use:   "bookings",
	Short: "Manage bookings",
}

var bookingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bookings",
	RunE:  listBookings,
}

var bookingsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Book a room",
	Long:  `Book a room for a time range. Times are RFC3339, e.g. 2026-05-04T10:00:00Z.`,
	RunE:  createBooking,
}

var bookingsCancelCmd = &cobra.Command{
	Use:   "cancel [booking-id]",
	Short: "Cancel a booking",
	Args:  cobra.ExactArgs(1),
	RunE:  cancelBooking,
}

// History commands
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show bookings made or cancelled from this machine",
	RunE:  showHistory,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the local booking history",
	RunE:  showHistoryStats,
}

// Auth commands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the login session",
}

var authCallbackCmd = &cobra.Command{
	Use:   "callback [code]",
	Short: "Complete login with the code returned by the OAuth provider",
	Args:  cobra.ExactArgs(1),
	RunE:  authCallback,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	RunE:  authStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored session",
	RunE:  authLogout,
}

var (
	// Booking flags
	roomID    string
	title     string
	startTime string
	endTime   string

	// History flags
	historyLimit int

	// OAuth state returned with the code
	oauthState string
)

func init() {
	cobra.OnInitialize(initializeLogger)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.roombook/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&hostname, "host", "", "hostname of the booking site (overrides app.hostname)")

	bookingsListCmd.Flags().StringVarP(&roomID, "room", "r", "", "only list bookings for this room")

	bookingsCreateCmd.Flags().StringVarP(&roomID, "room", "r", "", "Room ID (required)")
	bookingsCreateCmd.Flags().StringVarP(&title, "title", "t", "", "Booking title")
	bookingsCreateCmd.Flags().StringVar(&startTime, "start", "", "Start time, RFC3339 (required)")
	bookingsCreateCmd.Flags().StringVar(&endTime, "end", "", "End time, RFC3339 (required)")
	bookingsCreateCmd.MarkFlagRequired("room")
	bookingsCreateCmd.MarkFlagRequired("start")
	bookingsCreateCmd.MarkFlagRequired("end")

	historyCmd.Flags().StringVarP(&roomID, "room", "r", "", "only show history for this room")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum number of records")

	authCallbackCmd.Flags().StringVar(&oauthState, "state", "", "state value returned with the code")

	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsGetCmd)

	bookingsCmd.AddCommand(bookingsListCmd)
	bookingsCmd.AddCommand(bookingsCreateCmd)
	bookingsCmd.AddCommand(bookingsCancelCmd)

	historyCmd.AddCommand(historyStatsCmd)

	authCmd.AddCommand(authCallbackCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)

	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(roomsCmd)
	rootCmd.AddCommand(bookingsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(authCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if isAuthError(err) {
			fmt.Fprintln(os.Stderr, "Log in again with: roombook auth callback <code>")
		}
		os.Exit(1)
	}
}

func initializeLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration and applies the log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, config.WithHostname(hostname))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if logger == nil {
		initializeLogger()
	}

	if cfg.Log.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Log.Level)
		if err == nil {
			logger = logger.WithOptions(zap.IncreaseLevel(level))
		}
	}

	logger.Debug("resolved endpoints",
		zap.Stringer("environment", cfg.Environment()),
		zap.String("baseURL", cfg.Endpoints().APIBaseURL),
	)

	return cfg, nil
}

func sessionStore(cfg *config.Config) *auth.SessionStore {
	return auth.NewSessionStore(cfg.Session.Path, cfg.Session.Passphrase)
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	token, err := auth.ResolveToken(sessionStore(cfg), time.Now())
	if err != nil {
		return nil, err
	}

	return api.NewClient(
		cfg.Endpoints(),
		token,
		time.Duration(cfg.API.Timeout)*time.Second,
		cfg.API.RetryCount,
		logger,
	), nil
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openHistory(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	removed, err := db.CleanupOldRecords(cfg.Database.Retention)
	if err != nil {
		logger.Error("failed to cleanup old history records", zap.Error(err))
	} else if removed > 0 {
		logger.Debug("removed old history records", zap.Int64("count", removed))
	}

	return db, nil
}

func showEndpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ep := cfg.Endpoints()
	redirect := ep.OAuthRedirectURI
	if redirect == "" {
		redirect = "(unset)"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Environment:\t%s\n", cfg.Environment())
	fmt.Fprintf(w, "API base URL:\t%s\n", ep.APIBaseURL)
	fmt.Fprintf(w, "Auth callback URL:\t%s\n", ep.AuthCallbackURL)
	fmt.Fprintf(w, "OAuth redirect URI:\t%s\n", redirect)
	fmt.Fprintf(w, "Bookings URL:\t%s\n", ep.BookingsURL)
	fmt.Fprintf(w, "Rooms URL:\t%s\n", ep.RoomsURL)
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	configDir, err := config.Dir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	if err := os.WriteFile(configPath, []byte(config.DefaultYAML), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("Set app.hostname to the booking site, or pass --host.")
	return nil
}

func listRooms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	rooms, err := client.ListRooms(ctx)
	if err != nil {
		return err
	}

	if len(rooms) == 0 {
		fmt.Println("No rooms found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCAPACITY\tLOCATION")
	for _, room := range rooms {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", room.ID, room.Name, room.Capacity, room.Location)
	}
	return w.Flush()
}

func getRoom(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	room, err := client.GetRoom(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", room.ID)
	fmt.Printf("Name:      %s\n", room.Name)
	fmt.Printf("Capacity:  %d\n", room.Capacity)
	if room.Location != "" {
		fmt.Printf("Location:  %s\n", room.Location)
	}
	if len(room.Amenities) > 0 {
		fmt.Printf("Amenities: %v\n", room.Amenities)
	}
	return nil
}

func listBookings(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	bookings, err := client.ListBookings(ctx, roomID)
	if err != nil {
		return err
	}

	if len(bookings) == 0 {
		fmt.Println("No bookings found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOM\tSTART\tEND\tSTATUS\tTITLE")
	for _, b := range bookings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.RoomID,
			b.StartTime.Local().Format("2006-01-02 15:04"),
			b.EndTime.Local().Format("2006-01-02 15:04"),
			b.Status, b.Title)
	}
	return w.Flush()
}

func createBooking(cmd *cobra.Command, args []string) error {
	start, err := time.Parse(time.RFC3339, startTime)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, endTime)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := commandContext()
	defer cancel()

	req := api.BookingRequest{RoomID: roomID, Title: title, StartTime: start, EndTime: end}
	booking, bookErr := client.CreateBooking(ctx, req)

	record := database.BookingRecord{
		RoomID:    roomID,
		Action:    database.ActionCreate,
		StartTime: start,
		EndTime:   end,
		Status:    database.StatusSuccess,
	}
	if bookErr != nil {
		record.Status = database.StatusFailed
		record.ErrorMessage = bookErr.Error()
	} else {
		record.BookingID = booking.ID
	}
	if _, err := db.InsertBookingRecord(record); err != nil {
		logger.Error("failed to record booking", zap.Error(err))
	}

	if bookErr != nil {
		return bookErr
	}

	fmt.Println("Booking created successfully!")
	fmt.Printf("Booking ID: %s\n", booking.ID)
	fmt.Printf("Room:       %s\n", booking.RoomID)
	fmt.Printf("From:       %s\n", booking.StartTime.Local().Format(time.RFC1123))
	fmt.Printf("To:         %s\n", booking.EndTime.Local().Format(time.RFC1123))
	return nil
}

func cancelBooking(cmd *cobra.Command, args []string) error {
	bookingID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := commandContext()
	defer cancel()

	cancelErr := client.CancelBooking(ctx, bookingID)

	// The room of a cancelled booking comes from our own history when we made it.
	record := database.BookingRecord{
		BookingID: bookingID,
		Action:    database.ActionCancel,
		Status:    database.StatusSuccess,
	}
	if previous, err := db.SearchBookings(database.SearchCriteria{Action: database.ActionCreate, Status: database.StatusSuccess}); err == nil {
		for _, r := range previous {
			if r.BookingID == bookingID {
				record.RoomID = r.RoomID
				record.StartTime = r.StartTime
				record.EndTime = r.EndTime
				break
			}
		}
	}
	if cancelErr != nil {
		record.Status = database.StatusFailed
		record.ErrorMessage = cancelErr.Error()
	}
	if _, err := db.InsertBookingRecord(record); err != nil {
		logger.Error("failed to record cancellation", zap.Error(err))
	}

	if cancelErr != nil {
		return cancelErr
	}

	fmt.Printf("Booking '%s' has been cancelled.\n", bookingID)
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.GetBookingHistory(roomID, historyLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No booking history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tACTION\tSTATUS\tBOOKING\tROOM\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Local().Format("2006-01-02 15:04:05"),
			r.Action, r.Status, r.BookingID, r.RoomID, r.ErrorMessage)
	}
	return w.Flush()
}

func showHistoryStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		return err
	}

	fmt.Println("Booking History")
	fmt.Println("===============")
	fmt.Printf("Total records:   %d\n", stats.TotalRecords)
	fmt.Printf("Rooms involved:  %d\n", stats.DistinctRooms)
	fmt.Printf("Last 24 hours:   %d\n", stats.Recent24h)
	fmt.Printf("Created:         %d\n", stats.ByAction[database.ActionCreate])
	fmt.Printf("Cancelled:       %d\n", stats.ByAction[database.ActionCancel])
	fmt.Printf("Failed attempts: %d\n", stats.ByStatus[database.StatusFailed])
	return nil
}

func authCallback(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	client := auth.NewClient(cfg.Endpoints(), logger)
	session, err := client.Callback(ctx, args[0], oauthState)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	store := sessionStore(cfg)
	if err := store.Save(session); err != nil {
		return err
	}

	fmt.Println("Login successful!")
	if session.Email != "" {
		fmt.Printf("Signed in as: %s\n", session.Email)
	}
	if !session.ExpiresAt.IsZero() {
		fmt.Printf("Expires:      %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
	}
	fmt.Printf("Session saved to %s\n", store.Path())
	return nil
}

func authStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if os.Getenv(auth.EnvAuthToken) != "" {
		fmt.Printf("Using token from %s.\n", auth.EnvAuthToken)
		return nil
	}

	session, err := sessionStore(cfg).Load()
	if err != nil {
		return err
	}
	if session == nil {
		fmt.Println("Not logged in.")
		return nil
	}

	if session.Email != "" {
		fmt.Printf("Signed in as: %s\n", session.Email)
	}
	switch {
	case session.ExpiresAt.IsZero():
		fmt.Println("Session does not expire.")
	case session.Expired(time.Now()):
		fmt.Println(auth.ErrSessionExpired.Error())
	default:
		fmt.Printf("Expires: %s\n", session.ExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

func authLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := sessionStore(cfg).Clear(); err != nil {
		return err
	}

	fmt.Println("Logged out.")
	return nil
}

// isAuthError reports whether err means the user has to log in again.
func isAuthError(err error) bool {
	return errors.Is(err, auth.ErrSessionExpired) ||
		errors.Is(err, auth.ErrSessionEncrypted) ||
		api.StatusCode(err) == 401
}
