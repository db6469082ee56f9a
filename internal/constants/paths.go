package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// BackupFilePrefix is the file name prefix of database snapshots.
const BackupFilePrefix = "stockpilot-"

// BackupFileExt is the file extension of database snapshots.
const BackupFileExt = ".db"
