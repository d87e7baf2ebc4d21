package storage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken は署名トークンの検証に失敗した場合のエラー。
var ErrInvalidToken = errors.New("storage: invalid or expired token")

// objectClaims は署名付きURLのトークンに含めるクレーム。
type objectClaims struct {
	Bucket string `json:"bkt"`
	Path   string `json:"pth"`
	jwt.RegisteredClaims
}

// Signer はオブジェクト単位の期限付きアクセストークンを発行・検証する。
type Signer struct {
	key     []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

// NewSigner はSignerを生成する。baseURLは署名付きURLの組み立てに使用する。
func NewSigner(secret string, ttl time.Duration, baseURL string) *Signer {
	return &Signer{
		key:     []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Sign はbucketとpathに限定したHS256トークンを発行する。
func (s *Signer) Sign(bucket, path string) (string, time.Time, error) {
	expiresAt := s.now().Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, objectClaims{
		Bucket: bucket,
		Path:   path,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// SignedURL はBASE_URL/files/<bucket>/<path>?token=... 形式の絶対URLを返す。
func (s *Signer) SignedURL(bucket, path string) (string, time.Time, error) {
	token, expiresAt, err := s.Sign(bucket, path)
	if err != nil {
		return "", time.Time{}, err
	}
	u := s.baseURL + "/files/" + bucket + "/" + path + "?" + url.Values{"token": {token}}.Encode()
	return u, expiresAt, nil
}

// Verify はトークンが有効期限内かつ指定のbucketとpathを対象としているかを検証する。
func (s *Signer) Verify(token, bucket, path string) error {
	claims := &objectClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Bucket != bucket || claims.Path != path {
		return ErrInvalidToken
	}
	return nil
}
