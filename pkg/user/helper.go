package user

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultCost            = 12
	generatedPasswordLen   = 20
	randomPasswordSentinel = "random"
)

var (
	lowerCharSet = "abcdefghijkmnopqrstuvwxyz"
	upperCharSet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	numberSet    = "23456789"
	allCharSet   = lowerCharSet + upperCharSet + numberSet
)

func generateRandomPassword(passwordLength, minNum, minUpperCase int) (string, error) {
	var pb strings.Builder

	for i := 0; i < minNum; i++ {
		if err := writeRandomChar(&pb, numberSet); err != nil {
			return "", err
		}
	}

	for i := 0; i < minUpperCase; i++ {
		if err := writeRandomChar(&pb, upperCharSet); err != nil {
			return "", err
		}
	}

	remainingLength := passwordLength - minNum - minUpperCase
	for i := 0; i < remainingLength; i++ {
		if err := writeRandomChar(&pb, allCharSet); err != nil {
			return "", err
		}
	}

	password := []byte(pb.String())
	for i := len(password) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		password[i], password[j] = password[j], password[i]
	}
	return string(password), nil
}

func writeRandomChar(pb *strings.Builder, charSet string) error {
	idx, err := randomIndex(len(charSet))
	if err != nil {
		return err
	}
	pb.WriteByte(charSet[idx])
	return nil
}

func randomIndex(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}

func generatePassword(password []byte, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, cost)
}

func checkPassword(hashedPassword, password []byte) error {
	err := bcrypt.CompareHashAndPassword(hashedPassword, password)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	if err != nil {
		logrus.
			WithError(err).
			WithField("password_len", len(password)).
			Error("failed to compare password")
		return ErrInvalidCredentials
	}
	return nil
}

func newId() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
