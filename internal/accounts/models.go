package accounts

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/edusync/edusync/internal/apiclient"
)

// Account is a teacher record as the backend lists it. Passwords never
// appear here; they only travel in create and update payloads.
type Account struct {
	ID    apiclient.ID `json:"id"`
	Name  string       `json:"name"`
	Email string       `json:"email"`
}

// Fields is the editable content of the create form.
type Fields struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// IsZero reports whether every field is empty.
func (f Fields) IsZero() bool {
	return f == Fields{}
}

type createPayload struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// UpdateRequest is one of BasicUpdate or PasswordUpdate. The backend only
// changes a password when the payload carries one.
type UpdateRequest interface {
	payload() any
}

// BasicUpdate changes name and email only.
type BasicUpdate struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u BasicUpdate) payload() any { return u }

// PasswordUpdate changes name, email and password.
type PasswordUpdate struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

func (u PasswordUpdate) payload() any { return u }

// NewUpdateRequest picks PasswordUpdate when password is non-empty and
// BasicUpdate otherwise.
func NewUpdateRequest(name, email, password, confirmation string) UpdateRequest {
	if password == "" {
		return BasicUpdate{Name: name, Email: email}
	}
	return PasswordUpdate{Name: name, Email: email, Password: password, PasswordConfirmation: confirmation}
}

// decodeList accepts a bare array or an object wrapping it under "data".
func decodeList(data []byte) ([]Account, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []Account{}, nil
	}
	var list []Account
	if data[0] == '[' {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
	} else {
		var wrapped struct {
			Data *[]Account `json:"data"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		if wrapped.Data == nil {
			return nil, errors.New("account list response has no data")
		}
		list = *wrapped.Data
	}
	if list == nil {
		list = []Account{}
	}
	return list, nil
}

// rawList captures a response body for decodeList.
type rawList struct {
	accounts []Account
}

func (r *rawList) UnmarshalJSON(data []byte) error {
	list, err := decodeList(data)
	if err != nil {
		return err
	}
	r.accounts = list
	return nil
}
