package printclient

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

var errBadTimestamp = errors.New("printclient: timestamp must be positive")

// Sign считает подпись запроса: md5(client_id + timestamp + client_secret) в hex.
// Содержимое печати в подпись не входит.
func Sign(clientID string, timestamp int64, clientSecret string, upper bool) (string, error) {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" || clientSecret == "" {
		return "", ErrConfiguration
	}
	if timestamp <= 0 {
		return "", errBadTimestamp
	}

	sum := md5.Sum([]byte(clientID + strconv.FormatInt(timestamp, 10) + clientSecret))
	sign := hex.EncodeToString(sum[:])
	if upper {
		sign = strings.ToUpper(sign)
	}
	return sign, nil
}
