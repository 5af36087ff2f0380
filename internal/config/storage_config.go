package config

type StorageConfig interface {
	GetStorageEndpoint() string
	GetStorageRegion() string
	GetStorageAccessKeyID() string
	GetStorageSecretAccessKey() string
	GetAvatarBucket() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetStorageEndpoint is the S3-compatible endpoint of the backend's storage service.
func (Storage) GetStorageEndpoint() string {
	return GetEnv("STORAGE_ENDPOINT", Backend{}.GetBackendURL()+"/storage/v1/s3")
}

func (Storage) GetStorageRegion() string {
	return GetEnv("STORAGE_REGION", "us-east-1")
}

func (Storage) GetStorageAccessKeyID() string {
	return GetEnv("STORAGE_ACCESS_KEY_ID", "")
}

func (Storage) GetStorageSecretAccessKey() string {
	return GetEnv("STORAGE_SECRET_ACCESS_KEY", "")
}

func (Storage) GetAvatarBucket() string {
	return GetEnv("AVATAR_BUCKET", "avatars")
}
