// Copyright 2025, the QuickAI contributors
// SPDX-License-Identifier: AGPL-3.0-only

// Package resume reads uploaded PDF resumes and builds the review prompt.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrNotPDF        = errors.New("file is not a PDF document")
	ErrUnreadable    = errors.New("PDF document could not be read")
	ErrEmptyDocument = errors.New("PDF document has no text")
)

var magic = []byte("%PDF-")

// ExtractText returns the plain text of the PDF document in data.
func ExtractText(data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, magic) {
		return "", ErrNotPDF
	}

	// the pdf package panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	text = strings.TrimSpace(string(raw))
	if text == "" {
		return "", ErrEmptyDocument
	}

	return text, nil
}

// Prompt asks for a review of the resume text.
func Prompt(text string) string {
	return "Review the following resume and provide constructive feedback on its strengths, " +
		"weaknesses and areas for improvement. Resume Content:\n\n" + text
}
