package library

import (
	"fmt"

	"github.com/pavel-fokin/media-library/internal/s3"
	"github.com/pavel-fokin/media-library/internal/urlgen"
)

type Config struct {
	DBPath      string `env:"MEDIA_LIBRARY_DB_PATH" envDefault:"media.db"`
	MaxFileSize int64  `env:"MEDIA_LIBRARY_MAX_FILE_SIZE" envDefault:"10485760"`
	DefaultDisk string `env:"MEDIA_LIBRARY_DEFAULT_DISK" envDefault:"local"`
	// Disks maps disk names to drivers, e.g. "local:local,media:s3".
	Disks map[string]string `env:"MEDIA_LIBRARY_DISKS" envDefault:"local:local"`

	PathGenerator string `env:"MEDIA_LIBRARY_PATH_GENERATOR" envDefault:"default"`
	IDAlphabet    string `env:"MEDIA_LIBRARY_ID_ALPHABET"`
	IDMinLength   uint8  `env:"MEDIA_LIBRARY_ID_MIN_LENGTH" envDefault:"6"`

	LocalRoot string `env:"MEDIA_LIBRARY_LOCAL_ROOT" envDefault:"./data/media"`
	LocalURL  string `env:"MEDIA_LIBRARY_LOCAL_URL" envDefault:"/media"`

	S3    BucketConfig `envPrefix:"MEDIA_LIBRARY_S3_"`
	Minio BucketConfig `envPrefix:"MEDIA_LIBRARY_MINIO_"`
	// MinioMultipleDisk stores every minio disk in the bucket named after it.
	MinioMultipleDisk bool `env:"MEDIA_LIBRARY_MINIO_MULTIPLE_DISK"`

	ConversionsFile string `env:"MEDIA_LIBRARY_CONVERSIONS_FILE"`
	// MaxDimension caps the width and height of generated images.
	MaxDimension int `env:"MEDIA_LIBRARY_MAX_DIMENSION" envDefault:"4096"`

	KafkaBrokers []string `env:"MEDIA_LIBRARY_KAFKA_BROKERS"`
	KafkaTopic   string   `env:"MEDIA_LIBRARY_KAFKA_TOPIC" envDefault:"media-conversions"`
	KafkaGroup   string   `env:"MEDIA_LIBRARY_KAFKA_GROUP" envDefault:"media-worker"`
}

// BucketConfig describes the object storage behind s3 or minio disks.
type BucketConfig struct {
	Bucket       string `env:"BUCKET"`
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Endpoint     string `env:"ENDPOINT"`
	AccessKey    string `env:"ACCESS_KEY"`
	SecretKey    string `env:"SECRET_KEY"`
	UsePathStyle bool   `env:"USE_PATH_STYLE"`
	// Domain is the public base URL of the bucket.
	Domain string `env:"DOMAIN"`
}

func (b BucketConfig) storage(bucket string) s3.Config {
	return s3.Config{
		Region:       b.Region,
		Bucket:       bucket,
		Endpoint:     b.Endpoint,
		AccessKey:    b.AccessKey,
		SecretKey:    b.SecretKey,
		UsePathStyle: b.UsePathStyle,
	}
}

func (c Config) validate() error {
	if len(c.Disks) == 0 {
		return fmt.Errorf("no disks configured")
	}
	if _, ok := c.Disks[c.DefaultDisk]; !ok {
		return fmt.Errorf("default disk %q is not configured", c.DefaultDisk)
	}
	for disk, driver := range c.Disks {
		switch driver {
		case urlgen.DriverLocal, urlgen.DriverS3, urlgen.DriverMinio:
		default:
			return fmt.Errorf("disk %q has unsupported driver %q", disk, driver)
		}
	}
	return nil
}

func (c Config) urls() urlgen.Config {
	return urlgen.Config{
		Drivers: c.Disks,
		Local:   urlgen.LocalConfig{Root: c.LocalRoot, URL: c.LocalURL},
		S3:      urlgen.S3Config{Domain: c.S3.Domain},
		Minio:   urlgen.MinioConfig{Domain: c.Minio.Domain, MultipleDisk: c.MinioMultipleDisk},
	}
}
