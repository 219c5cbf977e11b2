package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/shorty/internal/entity"
)

type MockURLRepository struct {
	mock.Mock
}

func (r *MockURLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	args := r.Called(ctx, shortCode, originalURL)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (r *MockURLRepository) RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	args := r.Called(ctx, originalURL)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (r *MockURLRepository) RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	args := r.Called(ctx, shortCode)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (r *MockURLRepository) RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	args := r.Called(ctx, shortCode)
	url, _ := args.Get(0).(*entity.URL)
	return url, args.Error(1)
}

func (r *MockURLRepository) RetrieveAll(ctx context.Context) ([]entity.URL, error) {
	args := r.Called(ctx)
	urls, _ := args.Get(0).([]entity.URL)
	return urls, args.Error(1)
}

type URLUseCaseTestSuite struct {
	suite.Suite
	errUnknown  error
	urlRepoMock *MockURLRepository
	uc          *URLUseCase
}

func (suite *URLUseCaseTestSuite) SetupSuite() {
	suite.errUnknown = errors.New("unknown error")
}

func (suite *URLUseCaseTestSuite) SetupSubTest() {
	suite.urlRepoMock = new(MockURLRepository)
	suite.uc = NewURLUseCase(suite.urlRepoMock)
}

func (suite *URLUseCaseTestSuite) TearDownSubTest() {
	suite.urlRepoMock.AssertExpectations(suite.T())
}

func (suite *URLUseCaseTestSuite) TestShortenURL() {
	suite.Run("empty original url", func() {
		url, err := suite.uc.ShortenURL(context.Background(), "")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrEmptyOriginalURL)
		suite.Nil(url)
		suite.urlRepoMock.AssertNotCalled(suite.T(), "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	suite.Run("lookup error", func() {
		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("existing url", func() {
		existing := &entity.URL{
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			Clicks:      2,
		}

		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(existing, nil)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.NoError(err)
		suite.Same(existing, url)
	})

	suite.Run("short code generation error", func() {
		suite.uc.shortCodeLength = -1

		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.Error(err)
		suite.Nil(url)
	})

	suite.Run("maximum retries error", func() {
		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Save", context.Background(), mock.Anything, "https://example.com").
			Times(5).
			Return(nil, entity.ErrShortCodeExists)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.Error(err)
		suite.ErrorIs(err, ErrMaxRetriesExceeded)
		suite.Nil(url)
	})

	suite.Run("retries after collision", func() {
		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Save", context.Background(), mock.Anything, "https://example.com").
			Once().
			Return(nil, entity.ErrShortCodeExists)
		suite.urlRepoMock.
			On("Save", context.Background(), mock.Anything, "https://example.com").
			Once().
			Return(&entity.URL{ShortCode: "xyz789", OriginalURL: "https://example.com"}, nil)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.NoError(err)
		suite.Equal("xyz789", url.ShortCode)
	})

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Save", context.Background(), mock.Anything, "https://example.com").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.uc.WithShortCodeLength(10)

		suite.urlRepoMock.
			On("RetrieveByOriginalURL", context.Background(), "https://example.com").
			Once().
			Return(nil, entity.ErrURLNotFound)
		suite.urlRepoMock.
			On("Save", context.Background(), mock.MatchedBy(func(code string) bool {
				return len(code) == 10
			}), "https://example.com").
			Once().
			Return(&entity.URL{
				ShortCode:   "abcdefghij",
				OriginalURL: "https://example.com",
				CreatedAt:   time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC),
			}, nil)

		url, err := suite.uc.ShortenURL(context.Background(), "https://example.com")

		suite.NoError(err)
		suite.NotNil(url)
		suite.Equal("abcdefghij", url.ShortCode)
		suite.Equal("https://example.com", url.OriginalURL)
		suite.Zero(url.Clicks)
	})
}

func (suite *URLUseCaseTestSuite) TestResolveShortCode() {
	suite.Run("url not found", func() {
		suite.urlRepoMock.
			On("RetrieveAndUpdateStats", context.Background(), "abc123").
			Once().
			Return(nil, entity.ErrURLNotFound)

		url, err := suite.uc.ResolveShortCode(context.Background(), "abc123")

		suite.Error(err)
		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("RetrieveAndUpdateStats", context.Background(), "abc123").
			Once().
			Return(nil, suite.errUnknown)

		url, err := suite.uc.ResolveShortCode(context.Background(), "abc123")

		suite.Error(err)
		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("RetrieveAndUpdateStats", context.Background(), "abc123").
			Once().
			Return(&entity.URL{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
				Clicks:      1,
			}, nil)

		url, err := suite.uc.ResolveShortCode(context.Background(), "abc123")

		suite.NoError(err)
		suite.NotNil(url)
		suite.Equal("https://example.com", url.OriginalURL)
		suite.Equal(int64(1), url.Clicks)
	})
}

func (suite *URLUseCaseTestSuite) TestGetURL() {
	suite.Run("url not found", func() {
		suite.urlRepoMock.
			On("RetrieveByShortCode", context.Background(), "abc123").
			Once().
			Return(nil, entity.ErrURLNotFound)

		url, err := suite.uc.GetURL(context.Background(), "abc123")

		suite.ErrorIs(err, entity.ErrURLNotFound)
		suite.Nil(url)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("RetrieveByShortCode", context.Background(), "abc123").
			Once().
			Return(&entity.URL{ShortCode: "abc123", OriginalURL: "https://example.com", Clicks: 4}, nil)

		url, err := suite.uc.GetURL(context.Background(), "abc123")

		suite.NoError(err)
		suite.Equal(int64(4), url.Clicks)
		suite.urlRepoMock.AssertNotCalled(suite.T(), "RetrieveAndUpdateStats", mock.Anything, mock.Anything)
	})
}

func (suite *URLUseCaseTestSuite) TestListURLs() {
	suite.Run("unknown error", func() {
		suite.urlRepoMock.
			On("RetrieveAll", context.Background()).
			Once().
			Return(nil, suite.errUnknown)

		urls, err := suite.uc.ListURLs(context.Background())

		suite.ErrorIs(err, suite.errUnknown)
		suite.Nil(urls)
	})

	suite.Run("success", func() {
		suite.urlRepoMock.
			On("RetrieveAll", context.Background()).
			Once().
			Return([]entity.URL{{ShortCode: "new123"}, {ShortCode: "old123"}}, nil)

		urls, err := suite.uc.ListURLs(context.Background())

		suite.NoError(err)
		suite.Len(urls, 2)
		suite.Equal("new123", urls[0].ShortCode)
	})
}

func TestURLUseCase(t *testing.T) {
	suite.Run(t, new(URLUseCaseTestSuite))
}
