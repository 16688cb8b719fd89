// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser provides pooled XML stanza parsing. Parsing is the most
// expensive step on the inbound frame path, so parser instances are reused
// across connections through a process-wide pool.
package parser

import (
	"errors"
	"time"

	"github.com/beevik/etree"
)

// ErrEmptyDocument is returned when the input contains no root element.
var ErrEmptyDocument = errors.New("no root element in document")

// Parser turns a text frame into a structured element tree. A Parser owns
// one reusable document that each Parse resets and refills, so it must not
// be shared; acquire one from the Pool per frame and return it afterwards.
// The returned root is only valid until the next Parse.
type Parser struct {
	doc       *etree.Document
	createdAt time.Time
	lastUsed  time.Time
	frames    uint64
}

// NewParser creates a standalone parser. Most callers should use Pool.Get.
func NewParser() *Parser {
	now := time.Now()
	doc := etree.NewDocument()
	doc.ReadSettings = etree.ReadSettings{Permissive: false}
	return &Parser{
		doc:       doc,
		createdAt: now,
		lastUsed:  now,
	}
}

// Parse reads one text frame and returns its root element.
func (p *Parser) Parse(frame string) (*etree.Element, error) {
	p.lastUsed = time.Now()
	p.frames++

	// Drop whatever the previous parse left behind, including partial
	// content from a failed one.
	p.doc.Child = nil
	if err := p.doc.ReadFromString(frame); err != nil {
		return nil, err
	}
	root := p.doc.Root()
	if root == nil {
		return nil, ErrEmptyDocument
	}
	return root, nil
}

// Healthy validates the parser by round-tripping a probe element. Parsers
// that fail validation are discarded on return to the pool.
func (p *Parser) Healthy() bool {
	el, err := p.Parse("<probe/>")
	return err == nil && el != nil && el.Tag == "probe"
}
