package homeconnect

import (
	"encoding/json"
	"io/ioutil"
	"log"
)

// TokenStore persists the OAuth2 tokens between runs. The API hands out a
// new refresh token on every refresh, so losing the latest one means
// pairing the account again.
type TokenStore interface {
	Load() (Token, bool)
	Save(token Token) error
}

type fileTokenStore struct {
	path string
}

func NewFileTokenStore(path string) TokenStore {
	return &fileTokenStore{path: path}
}

func (s *fileTokenStore) Load() (Token, bool) {
	contents, err := ioutil.ReadFile(s.path)
	if err != nil {
		return Token{}, false
	}
	var token Token
	if err := json.Unmarshal(contents, &token); err != nil {
		log.Printf("Invalid token file at %s, ignoring it", s.path)
		return Token{}, false
	}
	return token, token.AccessToken != "" || token.RefreshToken != ""
}

func (s *fileTokenStore) Save(token Token) error {
	contents, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(s.path, contents, 0600)
}
