// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package hskey

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

const ageBinaryHeader = "age-encryption.org/v1"

// ReadKeyFile reads a seed from path. The file holds a single line of
// 64 hex characters; blank lines and lines starting with '#' are
// ignored. If the file is age-encrypted (binary or ASCII-armored),
// identityPath must name an age identity file that can decrypt it.
func ReadKeyFile(path, identityPath string) (*Seed, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	defer clear(contents)

	plaintext := contents
	if isEncrypted(contents) {
		if identityPath == "" {
			return nil, fmt.Errorf("key file %s is age-encrypted; an identity file is required", path)
		}
		plaintext, err = decryptKeyFile(contents, identityPath)
		if err != nil {
			return nil, err
		}
		defer clear(plaintext)
	}

	line, err := seedLine(plaintext)
	if err != nil {
		return nil, fmt.Errorf("key file %s: %w", path, err)
	}
	return SeedFromHex(line)
}

// WriteKeyFile writes seed to path as hex with mode 0600. When
// recipients are given the file is encrypted to them and armored.
func WriteKeyFile(path string, seed *Seed, recipients []string) error {
	raw := seed.Array()
	defer clear(raw[:])

	var plaintext bytes.Buffer
	fmt.Fprintf(&plaintext, "# backtor onion service seed (%s)\n", Fingerprint(raw))
	fmt.Fprintf(&plaintext, "%x\n", raw[:])
	defer clear(plaintext.Bytes())

	output := plaintext.Bytes()
	if len(recipients) > 0 {
		encrypted, err := encryptKeyFile(output, recipients)
		if err != nil {
			return err
		}
		output = encrypted
	}

	if err := os.WriteFile(path, output, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

func isEncrypted(contents []byte) bool {
	trimmed := bytes.TrimSpace(contents)
	return bytes.HasPrefix(trimmed, []byte(armor.Header)) || bytes.HasPrefix(trimmed, []byte(ageBinaryHeader))
}

func seedLine(plaintext []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(plaintext))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: no seed found", ErrInvalidKey)
}

func decryptKeyFile(ciphertext []byte, identityPath string) ([]byte, error) {
	identityFile, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer identityFile.Close()

	identities, err := age.ParseIdentities(identityFile)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", identityPath, err)
	}

	var source io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armor.Header)) {
		source = armor.NewReader(bytes.NewReader(bytes.TrimSpace(ciphertext)))
	}

	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file with identity %s: %w", identityPath, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key file: %w", err)
	}
	return plaintext, nil
}

func encryptKeyFile(plaintext []byte, recipientKeys []string) ([]byte, error) {
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	armorWriter := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing seed to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return ciphertext.Bytes(), nil
}
