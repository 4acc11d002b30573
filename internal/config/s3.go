package config

// S3Config points the metadata store at an S3 compatible bucket.  Endpoint
// is set for MinIO or other non-AWS services; PublicBaseURL, when set, is
// used to build https links instead of s3:// URIs.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

func LoadS3Config() S3Config {
	return S3Config{
		Endpoint:      envStr("S3_ENDPOINT", ""),
		Region:        envStr("S3_REGION", "us-east-1"),
		Bucket:        envStr("S3_BUCKET", "ticket-metadata"),
		AccessKey:     envStr("S3_ACCESS_KEY", ""),
		SecretKey:     envStr("S3_SECRET_KEY", ""),
		PublicBaseURL: envStr("S3_PUBLIC_BASE_URL", ""),
		UsePathStyle:  envBool("S3_USE_PATH_STYLE", true),
		Prefix:        envStr("S3_PREFIX", "tickets"),
	}
}
