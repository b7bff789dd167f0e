package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// OAuthApp holds the app credentials a platform issues to this service.
type OAuthApp struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

func (a OAuthApp) Complete() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.RedirectURI != ""
}

// TwitterShared is the single-tenant OAuth 1.0a credential set of the app owner.
type TwitterShared struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

type LinkedinShared struct {
	AccessToken string
	AuthorURN   string
}

type Config struct {
	Twitter            OAuthApp
	Facebook           OAuthApp
	Linkedin           OAuthApp
	Instagram          OAuthApp
	Tiktok             OAuthApp
	Google             OAuthApp
	TwitterShared      TwitterShared
	LinkedinShared     LinkedinShared
	Platforms          []string
	PostgresURI        string
	RedisURI           string
	RabbitMQURL        string
	StateStore         string
	StateTTL           time.Duration
	UpstreamTimeout    time.Duration
	MediaTimeout       time.Duration
	PublishConcurrency int
	MediaConcurrency   int
	FrontendURL        string
	R2                 R2
	SecretKey          string
	CookieName         string
	Port               string
}

func LoadConfig() *Config {
	return &Config{
		Twitter:   loadApp("TWITTER"),
		Facebook:  loadApp("FACEBOOK"),
		Linkedin:  loadApp("LINKEDIN"),
		Instagram: loadApp("INSTAGRAM"),
		Tiktok: OAuthApp{
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("TIKTOK_REDIRECT_URI", ""),
		},
		Google: loadApp("GOOGLE"),
		TwitterShared: TwitterShared{
			ConsumerKey:       getEnv("TWITTER_API_KEY", ""),
			ConsumerSecret:    getEnv("TWITTER_API_SECRET", ""),
			AccessToken:       getEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessTokenSecret: getEnv("TWITTER_ACCESS_TOKEN_SECRET", ""),
		},
		LinkedinShared: LinkedinShared{
			AccessToken: getEnv("LINKEDIN_SHARED_ACCESS_TOKEN", ""),
			AuthorURN:   getEnv("LINKEDIN_SHARED_AUTHOR_URN", ""),
		},
		Platforms:          getEnvList("PLATFORMS", []string{"twitter", "facebook", "linkedin", "instagram", "tiktok", "youtube"}),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", "localhost:6379"),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		StateStore:         getEnv("STATE_STORE", "postgres"),
		StateTTL:           getEnvDuration("STATE_TTL", 10*time.Minute),
		UpstreamTimeout:    getEnvDuration("UPSTREAM_TIMEOUT", 20*time.Second),
		MediaTimeout:       getEnvDuration("MEDIA_TIMEOUT", 10*time.Minute),
		PublishConcurrency: getEnvInt("PUBLISH_CONCURRENCY", 10),
		MediaConcurrency:   getEnvInt("MEDIA_CONCURRENCY", 4),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "session"),
		Port:       getEnv("PORT", "3000"),
	}
}

// App returns the OAuth app configured for a platform. YouTube uses the Google app.
func (c *Config) App(platform string) OAuthApp {
	switch platform {
	case "twitter":
		return c.Twitter
	case "facebook":
		return c.Facebook
	case "linkedin":
		return c.Linkedin
	case "instagram":
		return c.Instagram
	case "tiktok":
		return c.Tiktok
	case "youtube":
		return c.Google
	}
	return OAuthApp{}
}

func (c *Config) Enabled(platform string) bool {
	for _, p := range c.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// Validate reports every enabled platform whose app credentials are incomplete.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	var missing []string
	for _, p := range c.Platforms {
		if !c.App(p).Complete() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing client id, client secret or redirect uri for: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadApp(prefix string) OAuthApp {
	return OAuthApp{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			list = append(list, item)
		}
	}
	return list
}
