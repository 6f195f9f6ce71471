// Package config provides configuration management for the circulation service.
//
// It uses Viper for loading configuration from environment variables and an
// optional .env file (loaded with godotenv). Defaults come from the `default`
// struct tags of every section, so each key is known to Viper's AutomaticEnv.
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP port, API key, registration rate limit
//   - Database: MySQL or SQLite connection details
//   - Storage: S3/MinIO credentials and the bucket holding seed fixtures
//   - Log: Logging level and format
//   - Queue: task queue driver (local, amqp), pool size, broker URL, await timeout
//   - Telemetry: OTLP endpoint and sampling
//
// Environment variables map to nested keys by replacing dots with underscores,
// e.g. QUEUE_DRIVER sets queue.driver.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Server.Port)
package config
