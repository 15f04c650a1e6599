package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"whosout/internal/aggregate"
	"whosout/internal/calendar"
	"whosout/internal/domain"
	"whosout/internal/integrations/timesheets"
	"whosout/internal/roster"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
const defaultRetryBackoffMillis = 1000

type Config struct {
	TimesheetsBaseURL   string               `yaml:"timesheets_base_url" validate:"omitempty,url"`
	TimesheetsUsername  string               `yaml:"timesheets_username"`
	TimesheetsPassword  string               `yaml:"timesheets_password"`
	TimesheetsPaths     timesheets.Paths     `yaml:"timesheets_paths"`
	TimesheetsSelectors timesheets.Selectors `yaml:"timesheets_selectors"`
	SnapshotPath        string               `yaml:"snapshot_path"`

	SlackBotToken         string `yaml:"slack_bot_token"`
	SlackChannelID        string `yaml:"slack_channel_id"`
	SlackLeadsChannelID   string `yaml:"slack_leads_channel_id"`
	SlackFailureChannelID string `yaml:"slack_failure_channel_id"`
	Mention               string `yaml:"mention"`

	TeamMembers       []string `yaml:"team_members"`
	Timezone          string   `yaml:"timezone"`
	FullDayHours      float64  `yaml:"full_day_hours" validate:"gt=0"`
	DefaultBlockHours float64  `yaml:"default_block_hours" validate:"gt=0"`
	AggregationPolicy string   `yaml:"aggregation_policy" validate:"oneof=sum max"`
	DateYMD           string   `yaml:"date_ymd"`
	WeekStart         string   `yaml:"week_start"`
	WeeklyDays        int      `yaml:"weekly_days" validate:"min=1,max=7"`

	ReadinessTimeoutSeconds int  `yaml:"readiness_timeout_seconds" validate:"gt=0"`
	ReadinessPollMillis     int  `yaml:"readiness_poll_millis" validate:"gt=0"`
	RunTimeoutSeconds       int  `yaml:"run_timeout_seconds" validate:"gt=0"`
	RetryAttempts           int  `yaml:"retry_attempts" validate:"min=1,max=10"`
	RetryBackoffMillis      *int `yaml:"retry_backoff_millis" validate:"omitempty,min=0"`
	RetryIncremental        bool `yaml:"retry_incremental"`

	DailySchedule  string `yaml:"daily_schedule"`
	WeeklySchedule string `yaml:"weekly_schedule"`

	DBPath                     string `yaml:"db_path"`
	ArtifactsDir               string `yaml:"artifacts_dir"`
	HTTPAddr                   string `yaml:"http_addr"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds" validate:"min=5"`
	DryRun                     bool   `yaml:"dry_run"`

	LogLevel  string `yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
	LogOutput string `yaml:"log_output" validate:"oneof=stdout file both"`
	LogPath   string `yaml:"log_path"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
	Date     domain.Date    `yaml:"-"` // parsed DateYMD, zero means today
	Week     domain.Date    `yaml:"-"` // parsed WeekStart, zero means this week
}

// Load reads CONFIG_PATH (default config.yaml), then the ENV_FILE dotenv file
// (default .env), then the environment, and validates the result.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	envFile := ".env"
	if p := os.Getenv("ENV_FILE"); p != "" {
		envFile = p
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading %s: %w", envFile, err)
	}

	var errs []error
	envOverride(&cfg.TimesheetsBaseURL, "TS_BASE_URL")
	envOverride(&cfg.TimesheetsUsername, "TS_USERNAME")
	envOverride(&cfg.TimesheetsPassword, "TS_PASSWORD")
	envOverride(&cfg.SnapshotPath, "SNAPSHOT_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.SlackLeadsChannelID, "SLACK_CHANNEL_ID_LEADS")
	envOverride(&cfg.SlackFailureChannelID, "SLACK_CHANNEL_ID_TEST")
	envOverrideAllowEmpty(&cfg.Mention, "MENTION")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideFloat(&cfg.FullDayHours, "FULL_DAY_HOURS", &errs)
	envOverrideFloat(&cfg.DefaultBlockHours, "DEFAULT_BLOCK_HOURS", &errs)
	envOverride(&cfg.AggregationPolicy, "AGGREGATION_POLICY")
	envOverride(&cfg.DateYMD, "DATE_YMD")
	envOverride(&cfg.WeekStart, "WEEK_START")
	envOverrideInt(&cfg.WeeklyDays, "WEEKLY_DAYS", &errs)
	envOverrideInt(&cfg.RunTimeoutSeconds, "RUN_TIMEOUT_SECONDS", &errs)
	envOverrideIntPtr(&cfg.RetryBackoffMillis, "RETRY_BACKOFF_MILLIS", &errs)
	envOverride(&cfg.DailySchedule, "DAILY_SCHEDULE")
	envOverride(&cfg.WeeklySchedule, "WEEKLY_SCHEDULE")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ArtifactsDir, "ARTIFACTS_DIR")
	envOverride(&cfg.HTTPAddr, "HTTP_ADDR")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS", &errs)
	envOverrideBool(&cfg.DryRun, "DRY_RUN")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.LogOutput, "LOG_OUTPUT")
	envOverride(&cfg.LogPath, "LOG_PATH")

	if names := os.Getenv("SUPPORT_TEAM_NAMES"); names != "" {
		cfg.TeamMembers = roster.ParseList(names)
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Mention == "" {
		cfg.Mention = "<!channel>"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = calendar.DefaultZone
	}
	if cfg.FullDayHours == 0 {
		cfg.FullDayHours = aggregate.DefaultFullDayHours
	}
	if cfg.DefaultBlockHours == 0 {
		cfg.DefaultBlockHours = 8
	}
	if cfg.AggregationPolicy == "" {
		cfg.AggregationPolicy = string(aggregate.PolicySum)
	}
	cfg.AggregationPolicy = strings.ToLower(strings.TrimSpace(cfg.AggregationPolicy))
	if cfg.WeeklyDays == 0 {
		cfg.WeeklyDays = 5
	}
	if cfg.ReadinessTimeoutSeconds == 0 {
		cfg.ReadinessTimeoutSeconds = 120
	}
	if cfg.ReadinessPollMillis == 0 {
		cfg.ReadinessPollMillis = 500
	}
	if cfg.RunTimeoutSeconds == 0 {
		cfg.RunTimeoutSeconds = 600
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoffMillis == nil {
		ms := defaultRetryBackoffMillis
		cfg.RetryBackoffMillis = &ms
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./whosout.db"
	}
	if cfg.ArtifactsDir == "" {
		cfg.ArtifactsDir = "./artifacts"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogOutput == "" {
		cfg.LogOutput = "stdout"
	}
	if cfg.LogPath == "" {
		cfg.LogPath = "./logs/whosout.log"
	}
}

var validate10 = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func validate(cfg *Config) error {
	if err := validate10.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s '%v': failed %s", fe.Field(), fe.Value(), fe.Tag())
		}
		return err
	}

	if !cfg.DryRun {
		required := []struct{ name, val string }{
			{"slack_bot_token", cfg.SlackBotToken},
			{"slack_channel_id", cfg.SlackChannelID},
		}
		for _, r := range required {
			if r.val == "" {
				return fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", r.name)
			}
		}
	}

	if cfg.SnapshotPath == "" {
		if cfg.TimesheetsBaseURL == "" || cfg.TimesheetsUsername == "" || cfg.TimesheetsPassword == "" {
			return errors.New("either snapshot_path or timesheets_base_url with timesheets_username and timesheets_password is required")
		}
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := calendar.LoadZone(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.DateYMD != "" {
		d, err := domain.ParseDate(cfg.DateYMD)
		if err != nil {
			return fmt.Errorf("invalid date_ymd '%s': %w", cfg.DateYMD, err)
		}
		cfg.Date = d
	}
	if cfg.WeekStart != "" {
		d, err := domain.ParseDate(cfg.WeekStart)
		if err != nil {
			return fmt.Errorf("invalid week_start '%s': %w", cfg.WeekStart, err)
		}
		cfg.Week = d
	}

	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, spec := range map[string]string{
		"daily_schedule":  cfg.DailySchedule,
		"weekly_schedule": cfg.WeeklySchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, spec, err)
		}
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string, errs *[]error) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s '%s': %w", envKey, val, err))
			return
		}
		*field = parsed
	}
}

// envOverrideIntPtr keeps an explicit 0 distinct from "not set".
func envOverrideIntPtr(field **int, envKey string, errs *[]error) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s '%s': %w", envKey, val, err))
			return
		}
		*field = &parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string, errs *[]error) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s '%s': %w", envKey, val, err))
			return
		}
		*field = parsed
	}
}

// Policy returns the parsed aggregation policy. Load has already validated it.
func (c Config) Policy() aggregate.Policy {
	p, _ := aggregate.ParsePolicy(c.AggregationPolicy)
	return p
}

func (c Config) ReadinessTimeout() time.Duration {
	return time.Duration(c.ReadinessTimeoutSeconds) * time.Second
}

func (c Config) ReadinessPollInterval() time.Duration {
	return time.Duration(c.ReadinessPollMillis) * time.Millisecond
}

func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// RetryBackoff is zero when retry_backoff_millis is explicitly 0.
func (c Config) RetryBackoff() time.Duration {
	ms := defaultRetryBackoffMillis
	if c.RetryBackoffMillis != nil {
		ms = *c.RetryBackoffMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// LeadsChannel falls back to the main channel when no leads channel is set.
func (c Config) LeadsChannel() string {
	if c.SlackLeadsChannelID != "" {
		return c.SlackLeadsChannelID
	}
	return c.SlackChannelID
}

func (c Config) LiveTimesheets() bool {
	return c.SnapshotPath == ""
}
