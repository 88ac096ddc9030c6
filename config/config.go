package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server       Server
	Database     Database
	Candidate    Bot
	Recruiter    Bot
	Telegram     Telegram
	GeminiApiKey string
	ContentDir   string
	AmqpURL      string
	AmqpExchange string
	Admin        AdminCommands
}

type Server struct {
	Port string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type Bot struct {
	Token string
}

type Telegram struct {
	APIBase string
	Timeout time.Duration
}

// AdminCommands are the secret text commands recognized wherever a plain
// message is accepted. Every command word is renameable through the
// environment.
type AdminCommands struct {
	Activate []string
	Reset    []string
	Skip     []string
	MarkGood string
	MarkBad  string
	Rewind   string
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("TELEGRAM_API_BASE", "https://api.telegram.org")
	viper.SetDefault("TELEGRAM_TIMEOUT_SECONDS", 30)
	viper.SetDefault("CONTENT_DIR", "./content")
	viper.SetDefault("AMQP_EXCHANGE", "talentflow.events")
	viper.SetDefault("ADMIN_CMD_ACTIVATE", "admin123!")
	viper.SetDefault("ADMIN_CMD_ACTIVATE_ALT", "admin_mode")
	viper.SetDefault("ADMIN_CMD_RESET", "!reload2!")
	viper.SetDefault("ADMIN_CMD_RESET_ALT", "reset_progress")
	viper.SetDefault("ADMIN_CMD_SKIP", "!skip2!")
	viper.SetDefault("ADMIN_CMD_SKIP_ALT", "skip_module")
	viper.SetDefault("ADMIN_CMD_GOOD", "!good!")
	viper.SetDefault("ADMIN_CMD_BAD", "!bad!")
	viper.SetDefault("ADMIN_CMD_PREV", "!prev!")

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")

	config.Candidate.Token = viper.GetString("CANDIDATE_BOT_TOKEN")
	config.Recruiter.Token = viper.GetString("RECRUITER_BOT_TOKEN")
	config.Telegram.APIBase = viper.GetString("TELEGRAM_API_BASE")
	config.Telegram.Timeout = time.Duration(viper.GetInt("TELEGRAM_TIMEOUT_SECONDS")) * time.Second

	config.GeminiApiKey = viper.GetString("GEMINI_API_KEY")
	config.ContentDir = viper.GetString("CONTENT_DIR")
	config.AmqpURL = viper.GetString("AMQP_URL")
	config.AmqpExchange = viper.GetString("AMQP_EXCHANGE")

	config.Admin.Activate = []string{
		viper.GetString("ADMIN_CMD_ACTIVATE"),
		viper.GetString("ADMIN_CMD_ACTIVATE_ALT"),
	}
	config.Admin.Reset = []string{
		viper.GetString("ADMIN_CMD_RESET"),
		viper.GetString("ADMIN_CMD_RESET_ALT"),
	}
	config.Admin.Skip = []string{
		viper.GetString("ADMIN_CMD_SKIP"),
		viper.GetString("ADMIN_CMD_SKIP_ALT"),
	}
	config.Admin.MarkGood = viper.GetString("ADMIN_CMD_GOOD")
	config.Admin.MarkBad = viper.GetString("ADMIN_CMD_BAD")
	config.Admin.Rewind = viper.GetString("ADMIN_CMD_PREV")

	log.Info().Str("port", config.Server.Port).Str("content_dir", config.ContentDir).Msg("Config loaded")
	return &config, nil
}
