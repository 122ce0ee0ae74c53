// Command execution for CLI commands.
//
// Information Hiding:
// - Provider and engine setup hidden
// - Event-to-terminal rendering hidden
// - Report persistence hidden
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"magellan/config"
	"magellan/llm"
	"magellan/research"
	"magellan/search"
	"magellan/storage"
	"magellan/travel"
	"magellan/travel/server"
)

// Options holds CLI execution options.
type Options struct {
	Provider    string
	Depth       int
	Breadth     int
	Concurrency int
	Verbose     bool
	Save        bool
	DBPath      string
	ReportsDir  string
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{
		Depth:       2,
		Breadth:     3,
		Concurrency: 2,
		DBPath:      "magellan.db",
		ReportsDir:  "reports",
	}
}

// Research runs a recursive deep-research session and prints the report.
func Research(ctx context.Context, query string, opts Options) error {
	engine, logger, err := buildEngine(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	start := time.Now()
	fmt.Printf("Researching %q (depth %d, breadth %d)...\n\n", query, opts.Depth, opts.Breadth)

	result, err := engine.ResearchTopic(ctx, query, opts.Depth, opts.Breadth, nil)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	report, err := engine.GenerateReport(ctx, query, result)
	if err != nil {
		return err
	}

	fmt.Printf("\n%s\n\n", report)
	fmt.Printf("(%d learnings from %d sources in %s)\n",
		result.LearningCount(), len(result.VisitedURLs()), time.Since(start).Round(time.Second))

	if opts.Save {
		meta, err := saveReport(ctx, query, report, result, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save report: %v\n", err)
			return nil
		}
		fmt.Printf("Saved as %s (%s)\n", meta.Slug, meta.Path)
	}
	return nil
}

// Simple runs a single-pass research lookup and prints the answer.
func Simple(ctx context.Context, query string, opts Options) error {
	engine, logger, err := buildEngine(opts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	answer, err := engine.SimpleResearch(ctx, query)
	if err != nil {
		return fmt.Errorf("research failed: %w", err)
	}

	fmt.Printf("\n%s\n", answer)
	return nil
}

// TravelServe starts the travel tools HTTP server.
func TravelServe(ctx context.Context, port string, opts Options) error {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return err
	}

	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}
	if settings.Travel.SerpAPIKey == "" {
		return fmt.Errorf("SERPAPI_KEY environment variable not set")
	}
	if port == "" {
		port = settings.Travel.ServerPort
	}

	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := llm.NewClient(provider)
	flights := travel.NewFlightClient(settings.Travel.SerpAPIKey)
	weather := travel.NewWeatherClient(client)

	handler := server.NewHandler(flights, weather, logger)
	router := server.NewRouter(handler)

	fmt.Printf("Travel server listening on port %s\n", port)
	return router.Run(":" + port)
}

// TravelPlan runs an interactive trip-planning session on the terminal.
// It collects travel details over as many turns as needed, then fetches
// flights and weather for the completed trip.
func TravelPlan(ctx context.Context, opts Options) error {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return err
	}

	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}
	if settings.Travel.SerpAPIKey == "" {
		return fmt.Errorf("SERPAPI_KEY environment variable not set")
	}

	db, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	client := llm.NewClient(provider).
		WithMaxAttempts(settings.LLM.MaxAttempts).
		WithContextStore(db)
	assistant := travel.NewAssistant(client, time.Now().Year())
	flights := travel.NewFlightClient(settings.Travel.SerpAPIKey)
	weather := travel.NewWeatherClient(client)

	contextID := assistant.NewContextID()
	details := travel.NewDetails()
	parsed := false

	fmt.Println("Where would you like to go? (origin, destination, and dates; ctrl-d to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if !parsed {
			d, err := assistant.ParseRequest(ctx, input)
			if err != nil {
				// Not a parseable travel request; answer conversationally.
				reply, chatErr := assistant.Chat(ctx, contextID, input)
				if chatErr != nil {
					return chatErr
				}
				fmt.Printf("%s\n", reply)
				continue
			}
			details = d
			parsed = true
		} else {
			d, err := assistant.UpdateMissingFields(ctx, input, details)
			if err != nil {
				return err
			}
			details = d
		}

		if missing := details.MissingFields(); len(missing) > 0 {
			fmt.Printf("To better assist you, I still need the following details: %s.\n",
				strings.Join(missing, ", "))
			continue
		}
		break
	}

	return presentTrip(ctx, details, flights, weather)
}

// presentTrip prints flight options and the weather outlook for a fully
// specified trip. Either upstream failing degrades to a warning.
func presentTrip(ctx context.Context, details travel.Details, flights *travel.FlightClient, weather *travel.WeatherClient) error {
	fmt.Printf("\nPlanning %s to %s, %s until %s\n\n",
		details.Origin, details.Destination, details.StartDate, details.EndDate)

	flightText, err := flights.Search(ctx, travel.FlightQuery{
		Departure:     details.Origin,
		Arrival:       details.Destination,
		DepartureDate: details.StartDate,
		ReturnDate:    details.EndDate,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: flight search failed: %v\n", err)
	} else {
		fmt.Printf("Flights:\n%s\n", flightText)
	}

	report, err := weather.Forecast(ctx, details.Destination, details.StartDate, details.EndDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: weather lookup failed: %v\n", err)
		return nil
	}
	if report.Description != "" {
		fmt.Printf("Typical weather:\n%s\n\n", report.Description)
	}
	if len(report.Forecasts) > 0 {
		fmt.Println("Forecast:")
		for _, day := range report.Forecasts {
			fmt.Printf("  %s  %.0f to %.0f F, wind %.0f mph, precipitation %.0f%%\n",
				day.Date, day.MinTemperature, day.MaxTemperature,
				day.WindSpeed, day.PrecipitationProbability)
		}
	}
	return nil
}

// Reports lists saved reports, or prints one when slug is non-empty.
func Reports(ctx context.Context, slug string, opts Options) error {
	db, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := storage.NewReportStore(opts.ReportsDir, db)

	if slug != "" {
		body, meta, err := store.LoadReport(ctx, slug)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n\n(query: %q, saved %s)\n",
			body, meta.Query, time.Unix(meta.CreatedAt, 0).Format(time.RFC1123))
		return nil
	}

	reports, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Println("No saved reports.")
		return nil
	}
	for _, meta := range reports {
		fmt.Printf("%-52s %s (%d learnings, %d sources)\n",
			meta.Slug, time.Unix(meta.CreatedAt, 0).Format("2006-01-02 15:04"),
			meta.LearningCount, meta.SourceCount)
	}
	return nil
}

func saveReport(ctx context.Context, query, report string, result *research.Result, opts Options) (storage.ReportMeta, error) {
	db, err := storage.OpenSqlite(opts.DBPath)
	if err != nil {
		return storage.ReportMeta{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	store := storage.NewReportStore(opts.ReportsDir, db)
	return store.SaveReport(ctx, query, report, result.LearningCount(), len(result.VisitedURLs()))
}

// buildEngine wires a research engine from the options: provider, search
// client, logger, and terminal event rendering.
func buildEngine(opts Options) (*research.Engine, *zap.Logger, error) {
	provider, err := createProvider(opts.Provider)
	if err != nil {
		return nil, nil, err
	}

	settings, err := config.New(opts.Provider)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(opts.Verbose)
	if err != nil {
		return nil, nil, err
	}

	observe := terminalObserver(opts.Verbose)
	client := llm.NewClient(provider).WithMaxAttempts(settings.LLM.MaxAttempts)

	searcher := search.NewClient(settings.Search.APIKey).
		WithLimit(settings.Search.ResultLimit).
		WithLogger(logger)
	if settings.Search.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Warning: FIRECRAWL_API_KEY not set, research will fall back to model knowledge")
	}
	forwardHooks(client, searcher, observe)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = settings.Research.Concurrency
	}

	engine := research.NewEngine(client, searcher,
		research.WithLogger(logger),
		research.WithConcurrency(concurrency),
		research.WithMaxNodes(settings.Research.MaxNodes),
		research.WithObserver(observe))

	return engine, logger, nil
}

// forwardHooks routes model-call attempts and search degradation
// notifications into the research event stream, so retries and
// fallbacks surface through the same observer as engine progress.
func forwardHooks(client *llm.Client, searcher *search.Client, observe research.Observer) {
	client.OnAttempt(func(preview string) {
		observe(research.ModelCall{Preview: preview})
	})
	searcher.OnRateLimit(func(message string) {
		observe(research.RateLimit{Message: message})
	})
}

// terminalObserver renders research progress to the terminal. Model-call
// previews are hidden unless verbose; they fire once per retry attempt.
func terminalObserver(verbose bool) research.Observer {
	return func(ev research.Event) {
		switch e := ev.(type) {
		case research.ResearchStart:
			fmt.Printf("→ researching: %s\n", e.Topic)
		case research.SourceProcessing:
			fmt.Printf("  reading: %s (%s)\n", e.Title, e.URL)
		case research.NewLearning:
			fmt.Printf("  + %s\n", e.Text)
		case research.FollowupTopicEvent:
			fmt.Printf("→ follow-up: %s\n", e.Query)
		case research.RateLimit:
			fmt.Printf("  ! %s\n", e.Message)
		case research.GeneratingReport:
			fmt.Printf("\n%s\n", e.Info)
		case research.ModelCall:
			if verbose {
				fmt.Printf("  model: %s\n", e.Preview)
			}
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

func createProvider(providerName string) (llm.Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("--provider is required for this command")
	}

	providerType, err := llm.ParseProviderType(providerName)
	if err != nil {
		return nil, err
	}

	settings, err := config.New(providerName)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(providerName)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		APIKey(apiKey)
}
