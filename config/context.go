package config

type Context struct {
	Config *Config
}
