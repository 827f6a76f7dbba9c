package coalescer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

type AzureContainer interface {
	Create(context.Context, azblob.Metadata, azblob.PublicAccessType) (*azblob.ContainerCreateResponse, error)
	NewBlockBlobURL(string) azblob.BlockBlobURL
}

type AzureBlob interface {
	Upload(context.Context, io.ReadSeeker, azblob.BlobHTTPHeaders, azblob.Metadata, azblob.BlobAccessConditions, azblob.AccessTierType, azblob.BlobTagsMap, azblob.ClientProvidedKeyOptions) (*azblob.BlockBlobUploadResponse, error)
}

// AzureBlobStore writes every value as its own JSON blob named `<prefix><key>.json` in a single container.
type AzureBlobStore[K comparable, V any] struct {
	eventer

	// configuration items that should not change after Provision()
	accountName   string
	containerName string
	masterKey     *string
	prefix        string

	// internal properties
	container AzureContainer
	blob      AzureBlob
}

// This function should be called to create a new AzureBlobStore. The accountName and containerName refer to the details of an Azure
// Storage Account and container that the blobs can be created in. Call Provision() before the store is first used.
func NewAzureBlobStore[K comparable, V any](accountName, containerName string) *AzureBlobStore[K, V] {
	return &AzureBlobStore[K, V]{
		accountName:   accountName,
		containerName: containerName,
	}
}

// You must provide credentials for the AzureBlobStore to access the Azure Storage Account. Currently, the only supported method is to
// provide a read/write key via WithMasterKey(). Without it, anonymous access is attempted.
func (s *AzureBlobStore[K, V]) WithMasterKey(val string) *AzureBlobStore[K, V] {
	s.masterKey = &val
	return s
}

// The prefix is prepended to every blob name, for instance `users/`.
func (s *AzureBlobStore[K, V]) WithPrefix(val string) *AzureBlobStore[K, V] {
	s.prefix = val
	return s
}

// This allows you to provide mocked objects for container and blob for unit tests.
func (s *AzureBlobStore[K, V]) WithMocks(container AzureContainer, blob AzureBlob) *AzureBlobStore[K, V] {
	s.container = container
	s.blob = blob
	return s
}

// Call this method to create the container if it does not exist yet.
func (s *AzureBlobStore[K, V]) Provision(ctx context.Context) (err error) {

	// choose the appropriate credential
	var credential azblob.Credential
	if s.masterKey != nil {
		credential, err = azblob.NewSharedKeyCredential(s.accountName, *s.masterKey)
		if err != nil {
			return
		}
	} else {
		credential = azblob.NewAnonymousCredential()
	}

	// create pipeline and container reference
	// NOTE: we only check for a mock container at the end to improve code-coverage
	ref := fmt.Sprintf("https://%s.blob.core.windows.net/%s", s.accountName, s.containerName)
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})
	var u *url.URL
	u, err = url.Parse(ref)
	if err != nil {
		return
	}
	if s.container == nil {
		s.container = azblob.NewContainerURL(*u, pipeline)
	}

	// create the container if it doesn't exist
	_, err = s.container.Create(ctx, nil, azblob.PublicAccessNone)
	if err != nil {
		if serr, ok := err.(azblob.StorageError); ok {
			switch serr.ServiceCode() {
			case azblob.ServiceCodeContainerAlreadyExists:
				err = nil // this is a legit condition
				s.Emit(VerifiedContainerEvent, 0, ref, nil)
			default:
				return
			}
		} else {
			return
		}
	} else {
		s.Emit(CreatedContainerEvent, 0, ref, nil)
	}

	return
}

func (s *AzureBlobStore[K, V]) blobName(key K) string {
	return fmt.Sprintf("%s%v.json", s.prefix, key)
}

func (s *AzureBlobStore[K, V]) getBlob(name string) AzureBlob {
	if s.blob != nil {
		return s.blob
	}
	// NOTE: s.container only exists after Provision()
	return s.container.NewBlockBlobURL(name)
}

// Put uploads one blob per value, overwriting what was there. The first failed upload aborts the batch.
func (s *AzureBlobStore[K, V]) Put(ctx context.Context, values map[K]V) error {
	if s.container == nil && s.blob == nil {
		return UndefinedContainerError
	}
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		name := s.blobName(key)
		headers := azblob.BlobHTTPHeaders{ContentType: "application/json"}
		_, err = s.getBlob(name).Upload(ctx, bytes.NewReader(raw), headers, nil, azblob.BlobAccessConditions{}, azblob.AccessTierNone, nil, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			s.Emit(ErrorEvent, 0, "uploading a blob raised an error", err)
			return err
		}
		s.Emit(StoredEvent, len(raw), name, nil)
	}
	return nil
}
