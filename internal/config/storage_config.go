package config

type Storage struct {
	TokenStore string `yaml:"token_store" env:"TOKEN_STORE" env-default:"file"`
	TokenFile  string `yaml:"token_file" env:"TOKEN_FILE" env-default:"./data/credentials.json"`
	StorageKey string `yaml:"storage_key" env:"STORAGE_KEY" env-default:"jobboard.auth"`
	SealKey    string `yaml:"seal_key" env:"SEAL_KEY"`
	RedisAddr  string `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
}

var _ StorageConfig = Storage{}

// GetTokenStore returns the credential backend, "file" or "redis"
func (s Storage) GetTokenStore() string {
	if s.TokenStore == "" {
		return TokenStoreFile
	}
	return s.TokenStore
}

func (s Storage) GetTokenFile() string {
	return s.TokenFile
}

func (s Storage) GetStorageKey() string {
	return s.StorageKey
}

// GetSealKey returns the hex encoded 32 byte key used to seal the credential file.
// Empty means the file is written unsealed.
func (s Storage) GetSealKey() string {
	return s.SealKey
}

func (s Storage) GetRedisAddr() string {
	return s.RedisAddr
}
