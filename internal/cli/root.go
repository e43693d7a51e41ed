package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rohmanhakim/newscrawl/internal/build"
	"github.com/rohmanhakim/newscrawl/internal/config"
	"github.com/rohmanhakim/newscrawl/internal/contentstore"
	"github.com/rohmanhakim/newscrawl/internal/metadata"
	"github.com/rohmanhakim/newscrawl/internal/operations"
	"github.com/rohmanhakim/newscrawl/internal/planner"
	"github.com/rohmanhakim/newscrawl/internal/robots"
	"github.com/rohmanhakim/newscrawl/internal/telemetry"
	"github.com/rohmanhakim/newscrawl/pkg/fileutil"
	"github.com/spf13/cobra"
)

var (
	cfgFile           string
	seedURLs          []string
	maxDepth          int
	concurrency       int
	outputDir         string
	dryRun            bool
	maxPages          int
	userAgent         string
	timeout           time.Duration
	baseDelay         time.Duration
	jitter            time.Duration
	randomSeed        int64
	allowedHosts      []string
	allowedPathPrefix []string
	sqlitePath        string
	contentStoreDir   string
	sequenceDir       string
	requestsPerMinute int
	burstSize         int
)

// parseStringSliceToSet converts a string slice to a map[string]struct{} set
func parseStringSliceToSet(strings []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range strings {
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	if len(urlStrings) == 0 {
		return nil, fmt.Errorf("seed URLs cannot be empty")
	}

	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "newscrawl",
	Short: "A politeness-aware news crawler.",
	Long: `newscrawl is a CLI application that crawls news sites' hub and
article pages, respecting per-host politeness limits and robots.txt,
and persists the fetched content through ContentStore for downstream
analysis. A Planner adapts crawl depth/branching per host from
persisted history; SequenceRunner replays declarative multi-step
crawl sequences against the OperationsFacade's named operations.`,
	Version: build.FullVersion(),
	Run: func(cmd *cobra.Command, args []string) {
		// Check if seed URLs are provided
		if len(seedURLs) == 0 {
			fmt.Fprintf(os.Stderr, "Error: --seed-url is required. Please provide at least one seed URL to start crawling.\n")
			cmd.Usage()
			os.Exit(1)
		}

		// Parse seed URLs
		parsedURLs, err := parseSeedURLs(seedURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		// Build config using initConfig with parsed seed URLs
		cfg := InitConfig(parsedURLs)

		runCrawl(cfg, parsedURLs[0].String())
	},
}

// runCrawl wires a Facade over the configured storage/robots/planner
// stack and runs one CrawlCountryHubHistory operation against startURL
// — the ad-hoc single-hub entry point for the bare `newscrawl` command.
func runCrawl(cfg config.Config, startURL string) {
	deps, closeDeps, err := buildDependencies(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer closeDeps()

	params := operations.DefaultParams()
	params.UserAgent = cfg.UserAgent()
	params.ConcurrentWorkers = cfg.Concurrency()
	params.HistoryMaxDepth = cfg.MaxDepth()

	facade := operations.NewFacade(params, deps)
	fn, _ := facade.Resolve(string(operations.OpCrawlCountryHubHistory))
	result, runErr := fn(startURL, map[string]any{"maxPages": cfg.MaxPages()})
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", runErr)
		os.Exit(1)
	}

	opResult := result.(operations.OperationResult)
	fmt.Printf("Visited: %d\n", opResult.Visited)
	fmt.Printf("Articles: %d\n", opResult.Articles)
	fmt.Printf("Aborted: %t\n", opResult.Aborted)
}

// buildDependencies constructs the long-lived Robot/Store/Plan stack
// shared by every operation invocation in this process, and returns a
// closer that releases the underlying database handle.
func buildDependencies(cfg config.Config) (operations.Dependencies, func(), error) {
	dbPath := cfg.SqlitePath()
	if dbPath == "" {
		dbPath = ":memory:"
	}

	if dir := cfg.ContentStoreDir(); dir != "" {
		if ferr := fileutil.EnsureDir(dir); ferr != nil {
			return operations.Dependencies{}, func() {}, fmt.Errorf("creating content store dir: %w", ferr)
		}
		if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(dir, dbPath)
		}
	}

	db, err := contentstore.Open(dbPath)
	if err != nil {
		return operations.Dependencies{}, func() {}, fmt.Errorf("opening content store: %w", err)
	}

	storeParams := contentstore.DefaultParams()
	storeParams.BucketMaxBytes = cfg.BucketMaxBytes()
	store := contentstore.NewStore(db, storeParams)
	plan := planner.NewPlanner(db, planner.DefaultParams())

	sink := metadata.NewRecorder("newscrawl-cli")
	robot := robots.NewCachedRobot(&sink)
	robot.Init(cfg.UserAgent())

	bus := telemetry.NewBus()

	return operations.Dependencies{
		Robot:        &robot,
		Store:        store,
		Plan:         plan,
		MetadataSink: &sink,
		Emitter:      bus,
	}, func() { db.Close() }, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Here you will define your flags and configuration settings.
	// Cobra supports persistent flags, which, if defined here,
	// will be available to all subcommands in the docs-crawler application.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	rootCmd.PersistentFlags().IntVar(&maxDepth, "max-depth", 5, "maximum link depth from seed URL")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 3, "number of concurrent fetch workers")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "output", "root output directory for crawled content")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "crawl without writing output")
	rootCmd.PersistentFlags().IntVar(&maxPages, "max-pages", 0, "maximum number of pages to fetch (0 for unlimited)")
	rootCmd.PersistentFlags().StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "timeout for HTTP requests")
	rootCmd.PersistentFlags().DurationVar(&baseDelay, "base-delay", 0, "base delay between HTTP requests to the same host")
	rootCmd.PersistentFlags().DurationVar(&jitter, "jitter", 0, "random jitter added to base delay")
	rootCmd.PersistentFlags().Int64Var(&randomSeed, "random-seed", 0, "seed for random number generation (0 for current time)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedHosts, "allowed-host", []string{}, "explicit hostname allowlist (defaults to seed host)")
	rootCmd.PersistentFlags().StringArrayVar(&allowedPathPrefix, "allowed-path-prefix", []string{}, "restrict crawl to paths like `/docs`, `/guide`")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "", "path to the content store's sqlite database (defaults to in-memory)")
	rootCmd.PersistentFlags().StringVar(&contentStoreDir, "content-store-dir", "", "root directory for bucketed content store archives")
	rootCmd.PersistentFlags().StringVar(&sequenceDir, "sequence-dir", "", "directory SequenceConfigLoader reads sequence files from")
	rootCmd.PersistentFlags().IntVar(&requestsPerMinute, "requests-per-minute", 0, "per-host request rate limit (0 uses the default)")
	rootCmd.PersistentFlags().IntVar(&burstSize, "burst-size", 0, "per-host burst allowance above the steady rate (0 uses the default)")

	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(storeCmd)
}

// InitConfig reads in config file and ENV variables if set.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
func InitConfig(seedUrls []url.URL) config.Config {
	cfg, err := InitConfigWithError(seedUrls)
	if err != nil {
		fmt.Printf("Error: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// InitConfigWithError reads in config file and ENV variables if set, returning any errors.
// seedUrls is a mandatory parameter and must contain at least one valid URL.
// This makes it easier to test error cases.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if len(seedUrls) == 0 {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	if cfgFile != "" {
		fmt.Printf("Initializing config from file: %s\n", cfgFile)
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	// Build config from CLI flags using the With... functions with method chaining
	fmt.Println("No config file specified. Using default flag values or environment variables")

	// Start with default config using provided seed URLs and apply overrides using method chaining
	configBuilder := config.WithDefault(seedUrls)

	// Override with CLI flag values where provided
	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}

	if concurrency > 0 {
		configBuilder = configBuilder.WithConcurrency(concurrency)
	}

	if outputDir != "" && outputDir != "output" {
		configBuilder = configBuilder.WithOutputDir(outputDir)
	}

	if dryRun {
		configBuilder = configBuilder.WithDryRun(dryRun)
	}

	if maxPages > 0 {
		configBuilder = configBuilder.WithMaxPages(maxPages)
	}

	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}

	if timeout > 0 {
		configBuilder = configBuilder.WithTimeout(timeout)
	}

	if baseDelay > 0 {
		configBuilder = configBuilder.WithBaseDelay(baseDelay)
	}

	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}

	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}

	if len(allowedHosts) > 0 {
		configBuilder = configBuilder.WithAllowedHosts(parseStringSliceToSet(allowedHosts))
	}

	if len(allowedPathPrefix) > 0 {
		configBuilder = configBuilder.WithAllowedPathPrefix(allowedPathPrefix)
	}

	if sqlitePath != "" {
		configBuilder = configBuilder.WithSqlitePath(sqlitePath)
	}

	if contentStoreDir != "" {
		configBuilder = configBuilder.WithContentStoreDir(contentStoreDir)
	}

	if sequenceDir != "" {
		configBuilder = configBuilder.WithSequenceDir(sequenceDir)
	}

	if requestsPerMinute > 0 {
		configBuilder = configBuilder.WithRequestsPerMinute(requestsPerMinute)
	}

	if burstSize > 0 {
		configBuilder = configBuilder.WithBurstSize(burstSize)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	concurrency = 0
	outputDir = ""
	dryRun = false
	maxPages = 0
	userAgent = ""
	timeout = 0
	baseDelay = 0
	jitter = 0
	randomSeed = 0
	allowedHosts = []string{}
	allowedPathPrefix = []string{}
	sqlitePath = ""
	contentStoreDir = ""
	sequenceDir = ""
	requestsPerMinute = 0
	burstSize = 0
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrencyForTest(conc int) {
	concurrency = conc
}

func SetOutputDirForTest(dir string) {
	outputDir = dir
}

func SetDryRunForTest(dry bool) {
	dryRun = dry
}

func SetMaxPagesForTest(pages int) {
	maxPages = pages
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetTimeoutForTest(t time.Duration) {
	timeout = t
}

func SetBaseDelayForTest(delay time.Duration) {
	baseDelay = delay
}

func SetJitterForTest(j time.Duration) {
	jitter = j
}

func SetRandomSeedForTest(seed int64) {
	randomSeed = seed
}

func SetAllowedHostsForTest(hosts []string) {
	allowedHosts = hosts
}

func SetAllowedPathPrefixForTest(prefixes []string) {
	allowedPathPrefix = prefixes
}

func SetSqlitePathForTest(path string) {
	sqlitePath = path
}

func SetContentStoreDirForTest(dir string) {
	contentStoreDir = dir
}

func SetSequenceDirForTest(dir string) {
	sequenceDir = dir
}

func SetRequestsPerMinuteForTest(rpm int) {
	requestsPerMinute = rpm
}

func SetBurstSizeForTest(burst int) {
	burstSize = burst
}
