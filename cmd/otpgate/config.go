package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
)

type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
}

type redisConfig struct {
	addr     string
	password string
	db       int
}

type storeConfig struct {
	driver  string // memory, postgres, sqlite or mongo
	dsn     string
	mongoDB string
}

type postmarkConfig struct {
	apiURL *url.URL
	token  string
	stream string
}

type sesConfig struct {
	region           string
	configurationSet string
	endpoint         string
}

type mailConfig struct {
	driver   string // log, postmark or ses
	from     string
	postmark postmarkConfig
	ses      sesConfig
}

type logConfig struct {
	level string
	json  bool
}

// config is the configuration for the server command.
type config struct {
	dev    bool
	http   httpConfig
	redis  redisConfig
	store  storeConfig
	mail   mailConfig
	log    logConfig
	engine otpgate.Config
}

func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8080",
			readTimeout:     5 * time.Second,
			writeTimeout:    10 * time.Second,
			idleTimeout:     120 * time.Second,
			shutdownTimeout: 15 * time.Second,
		},
		redis: redisConfig{
			addr: "localhost:6379",
		},
		store: storeConfig{
			driver:  "memory",
			mongoDB: "otpgate",
		},
		mail: mailConfig{
			driver: "log",
			postmark: postmarkConfig{
				stream: "outbound",
			},
		},
		log: logConfig{
			level: "info",
			json:  true,
		},
		engine: defaultEngineConfig(),
	}
}

func defaultEngineConfig() otpgate.Config {
	c := otpgate.DefaultConfig()
	c.Audit.Enabled = true
	c.Metrics.Enabled = true
	c.Metrics.EnableLatencyHistograms = true
	return c
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"OTPGATE_HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"OTPGATE_HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"OTPGATE_HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"OTPGATE_HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"OTPGATE_HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"OTPGATE_REDIS_ADDR": func(v string, c *config) error {
		c.redis.addr = v
		return nil
	},
	"OTPGATE_REDIS_PASSWORD": func(v string, c *config) error {
		c.redis.password = v
		return nil
	},
	"OTPGATE_REDIS_DB": func(v string, c *config) error {
		return confInt(v, &c.redis.db, 0, 15)
	},
	"OTPGATE_STORE_DRIVER": func(v string, c *config) error {
		return confOneOf(v, &c.store.driver, "memory", "postgres", "sqlite", "mongo")
	},
	"OTPGATE_STORE_DSN": func(v string, c *config) error {
		c.store.dsn = v
		return nil
	},
	"OTPGATE_MONGO_DB": func(v string, c *config) error {
		c.store.mongoDB = v
		return nil
	},
	"OTPGATE_MAIL_DRIVER": func(v string, c *config) error {
		return confOneOf(v, &c.mail.driver, "log", "postmark", "ses")
	},
	"OTPGATE_MAIL_FROM": func(v string, c *config) error {
		c.mail.from = v
		return nil
	},
	"OTPGATE_POSTMARK_API_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("url %q must be http or https", v)
		}
		c.mail.postmark.apiURL = u
		return nil
	},
	"OTPGATE_POSTMARK_TOKEN": func(v string, c *config) error {
		c.mail.postmark.token = v
		return nil
	},
	"OTPGATE_POSTMARK_STREAM": func(v string, c *config) error {
		c.mail.postmark.stream = v
		return nil
	},
	"OTPGATE_SES_REGION": func(v string, c *config) error {
		c.mail.ses.region = v
		return nil
	},
	"OTPGATE_SES_CONFIGURATION_SET": func(v string, c *config) error {
		c.mail.ses.configurationSet = v
		return nil
	},
	"OTPGATE_SES_ENDPOINT": func(v string, c *config) error {
		c.mail.ses.endpoint = v
		return nil
	},
	"OTPGATE_LOG_LEVEL": func(v string, c *config) error {
		return confOneOf(strings.ToLower(v), &c.log.level, "debug", "info", "warn", "error")
	},
	"OTPGATE_LOG_JSON": func(v string, c *config) error {
		return confBool(v, &c.log.json)
	},
	"OTPGATE_SESSION_KEY": func(v string, c *config) error {
		key, err := hex.DecodeString(v)
		if err != nil {
			return fmt.Errorf("session key must be hex: %w", err)
		}
		if len(key) < 32 {
			return errors.New("session key must be at least 32 bytes")
		}
		c.engine.Session.PrivateKey = key
		return nil
	},
	"OTPGATE_SESSION_TTL": func(v string, c *config) error {
		return confDuration(v, &c.engine.Session.TTL, time.Minute, 30*24*time.Hour)
	},
	"OTPGATE_OTP_TTL": func(v string, c *config) error {
		return confDuration(v, &c.engine.OTP.TTL, 30*time.Second, time.Hour)
	},
	"OTPGATE_OTP_DIGITS": func(v string, c *config) error {
		return confInt(v, &c.engine.OTP.Digits, 6, 10)
	},
	"OTPGATE_OTP_MAX_ATTEMPTS": func(v string, c *config) error {
		return confInt(v, &c.engine.OTP.MaxAttempts, 1, 1000)
	},
	"OTPGATE_OTP_PEPPER": func(v string, c *config) error {
		pepper, err := hex.DecodeString(v)
		if err != nil {
			return fmt.Errorf("otp pepper must be hex: %w", err)
		}
		c.engine.OTP.Pepper = pepper
		return nil
	},
	"OTPGATE_COOKIE_NAME": func(v string, c *config) error {
		c.engine.Cookie.Name = v
		return nil
	},
	"OTPGATE_COOKIE_DOMAIN": func(v string, c *config) error {
		c.engine.Cookie.Domain = v
		return nil
	},
	"OTPGATE_COOKIE_SECURE": func(v string, c *config) error {
		return confBool(v, &c.engine.Cookie.Secure)
	},
	"OTPGATE_AUDIT_ENABLED": func(v string, c *config) error {
		return confBool(v, &c.engine.Audit.Enabled)
	},
	"OTPGATE_METRICS_ENABLED": func(v string, c *config) error {
		return confBool(v, &c.engine.Metrics.Enabled)
	},
}

// configFromEnv returns a config with values from the environment, falling
// back to defaults for anything unset. In dev mode the Redis, store and mail
// settings are replaced by in-process stand-ins and a missing session key is
// generated.
func configFromEnv(dev bool) (config, error) {
	c := defaultConfig()
	c.dev = dev

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				return c, fmt.Errorf("invalid env variable %s: %w", key, err)
			}
		}
	}

	if dev {
		c.store.driver = "memory"
		c.mail.driver = "log"
		c.engine.Cookie.Secure = false
		c.log.json = false
		return c, nil
	}

	if len(c.engine.Session.PrivateKey) == 0 {
		return c, errors.New("OTPGATE_SESSION_KEY is required")
	}
	if c.store.driver != "memory" && c.store.dsn == "" {
		return c, fmt.Errorf("OTPGATE_STORE_DSN is required for the %s store", c.store.driver)
	}
	if c.mail.driver != "log" && c.mail.from == "" {
		return c, errors.New("OTPGATE_MAIL_FROM is required")
	}
	if c.mail.driver == "postmark" && c.mail.postmark.token == "" {
		return c, errors.New("OTPGATE_POSTMARK_TOKEN is required")
	}
	if err := c.engine.Validate(); err != nil {
		return c, fmt.Errorf("engine config: %w", err)
	}

	return c, nil
}

// confDuration parses v into tgt and checks the result is within [min, max].
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur
	return nil
}

func confInt(v string, tgt *int, min, max int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	if n < min || n > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", n, min, max)
	}
	*tgt = n
	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*tgt = b
	return nil
}

func confOneOf(v string, tgt *string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			*tgt = v
			return nil
		}
	}
	return fmt.Errorf("%q must be one of %s", v, strings.Join(allowed, ", "))
}
