package storage

import "strconv"

// Config defines parameters required to connect to PostgreSQL instance
type Config struct {
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     uint16 `env:"DB_PORT" envDefault:"5432"`
	DBName   string `env:"DB_NAME" envDefault:"roomchat"`
}

// TestConfig points to a local database used in integration tests
var TestConfig = Config{
	User:     "postgres",
	Password: "postgres",
	Host:     "localhost",
	Port:     5432,
	DBName:   "roomchat_test",
}

// DSN composes keyword/value connection string from Config fields
func (c Config) DSN() string {
	return "user=" + c.User +
		" password=" + c.Password +
		" host=" + c.Host +
		" port=" + strconv.FormatUint(uint64(c.Port), 10) +
		" dbname=" + c.DBName +
		" sslmode=disable"
}
