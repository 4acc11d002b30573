package metadata

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/nft-ticket-registry/internal/config"
)

var issued = time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)

func gala() Ticket {
	return Ticket{
		EventName:   "Gala",
		Description: "Opening night",
		SeatID:      "A-12-5",
		Price:       1000,
		Currency:    "INR",
		ImageURL:    "https://img.example/gala.png",
		IssuedAt:    issued,
	}
}

func TestBuildDocument(t *testing.T) {
	d := BuildDocument(gala())

	assert.Equal(t, "Gala - Seat A-12-5", d.Name)
	assert.Equal(t, "Opening night", d.Description)
	require.Len(t, d.Attributes, 5)
	assert.Equal(t, Attribute{TraitType: "Price (INR)", Value: "1000 INR"}, d.Attributes[2])
	assert.Equal(t, Attribute{TraitType: "Max Resale Price (INR)", Value: "1100.00 INR"}, d.Attributes[3])
	assert.Equal(t, "2026-05-02T18:30:00Z", d.Attributes[4].Value)
}

func TestResaleCeiling(t *testing.T) {
	cases := map[int64]string{1: "1.10 X", 15: "16.50 X", 999: "1098.90 X", 1000: "1100.00 X"}
	for price, want := range cases {
		assert.Equal(t, want, Ticket{Price: price, Currency: "X"}.ResaleCeiling())
	}
}

func TestOnChain_ChunksLongStrings(t *testing.T) {
	tk := gala()
	tk.Description = strings.Repeat("é", 50) // 100 bytes
	m := OnChain(tk, "s3://bucket/tickets/"+strings.Repeat("a", 64)+".json")

	assert.Equal(t, "Gala - Seat A-12-5", m["name"])
	assert.Equal(t, "1100.00 INR", m["max_resale"])

	desc, ok := m["description"].([]string)
	require.True(t, ok)
	assert.Equal(t, tk.Description, strings.Join(desc, ""))
	for _, p := range desc {
		assert.LessOrEqual(t, len(p), maxChunk)
		assert.True(t, utf8.ValidString(p))
	}

	url, ok := m["metadataUrl"].([]string)
	require.True(t, ok)
	assert.Len(t, url, 2)
}

func TestOnChain_InvalidUTF8SplitsOnBytes(t *testing.T) {
	tk := gala()
	tk.EventName = "a" + strings.Repeat("\x80", 70)

	done := make(chan map[string]any, 1)
	go func() { done <- OnChain(tk, "") }()
	var m map[string]any
	select {
	case m = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnChain did not return")
	}

	parts, ok := m["event"].([]string)
	require.True(t, ok)
	assert.Equal(t, tk.EventName, strings.Join(parts, ""))
	for _, p := range parts {
		assert.NotEmpty(t, p)
		assert.LessOrEqual(t, len(p), maxChunk)
	}
}

func TestOnChain_SkipsEmpty(t *testing.T) {
	tk := gala()
	tk.ImageURL = ""
	m := OnChain(tk, "")
	assert.NotContains(t, m, "image")
	assert.NotContains(t, m, "metadataUrl")
}

type fakePut struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePut) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Store_ContentAddressed(t *testing.T) {
	put := &fakePut{}
	s := newS3Store(put, config.S3Config{Bucket: "meta", Prefix: "/tickets/"})

	uri, err := s.Upload(context.Background(), []byte(`{"a":1}`), "application/json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "s3://meta/tickets/"))
	assert.True(t, strings.HasSuffix(uri, ".json"))
	assert.Equal(t, `{"a":1}`, string(put.body))
	assert.Equal(t, "application/json", *put.in.ContentType)

	again, err := s.Upload(context.Background(), []byte(`{"a":1}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, uri, again)
}

func TestS3Store_PublicURL(t *testing.T) {
	s := newS3Store(&fakePut{}, config.S3Config{Bucket: "meta", Prefix: "tickets", PublicBaseURL: "https://cdn.example/"})
	uri, err := s.Upload(context.Background(), []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "https://cdn.example/tickets/"))
}

func TestS3Store_Failure(t *testing.T) {
	s := newS3Store(&fakePut{err: errors.New("503 slow down")}, config.S3Config{Bucket: "meta"})
	_, err := s.Upload(context.Background(), []byte("x"), "application/json")
	assert.ErrorIs(t, err, ErrUploadFailed)
}
