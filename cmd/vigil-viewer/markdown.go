// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// wrapBreakpoints are the characters a long line may break at, beyond
// plain spaces.
const wrapBreakpoints = " ,.;-+|"

// The summarizer emits plain prose markdown, so the dialect here is
// deliberately small: strikethrough, task lists, and bare-URL links on
// top of CommonMark. Anything else degrades to regular paragraphs.
var (
	summaryParser     goldmark.Markdown
	summaryParserOnce sync.Once
)

func getSummaryParser() goldmark.Markdown {
	summaryParserOnce.Do(func() {
		summaryParser = goldmark.New(
			goldmark.WithExtensions(
				extension.Strikethrough,
				extension.TaskList,
				extension.Linkify,
			),
		)
	})
	return summaryParser
}

// renderMarkdown renders markdown into ANSI-styled terminal text
// wrapped to width. The lipgloss renderer is pinned to ANSI-256 so a
// summary renders identically wherever the viewer's output lands.
func renderMarkdown(input string, theme Theme, width int) string {
	if width < 10 {
		width = 10
	}
	source := []byte(input)
	document := getSummaryParser().Parser().Parse(text.NewReader(source))

	styler := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styler.SetColorProfile(termenv.ANSI256)

	writer := &markdownWriter{
		source: source,
		theme:  theme,
		width:  width,
		styler: styler,
	}
	if err := ast.Walk(document, writer.walk); err != nil {
		return input
	}
	return strings.TrimRight(writer.output.String(), "\n")
}

// markdownWriter turns a goldmark AST into terminal text by walking it
// directly. Inline content accumulates in a buffer until its block
// ends, then gets wrapped to the current content width and written
// with the block prefixes (quote bars, list indents) applied. Code
// blocks bypass the accumulator: their lines are written verbatim.
type markdownWriter struct {
	source []byte
	theme  Theme
	width  int

	output strings.Builder
	inline strings.Builder

	// Block prefixes stack as quoting and list nesting deepen.
	// pendingBullet replaces the prefix on the first line of a list
	// item.
	prefixes      []blockPrefix
	linePrefix    string
	prefixWidth   int
	pendingBullet string

	// Inline emphasis state. Counters rather than booleans: markdown
	// nests.
	bold          int
	italic        int
	strikethrough int

	lists []listLevel

	styler *lipgloss.Renderer

	// trailingNewlines tracks how many newlines the output currently
	// ends with, keeping blank-line spacing idempotent.
	trailingNewlines int
}

type blockPrefix struct {
	text  string
	width int
}

type listLevel struct {
	ordered bool
	counter int
	tight   bool
}

func (writer *markdownWriter) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch typed := node.(type) {
	case *ast.Document:

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			writer.inline.Reset()
		} else {
			writer.endBlock()
		}

	case *ast.Heading:
		if entering {
			writer.inline.Reset()
		} else {
			writer.heading(typed.Level)
		}

	case *ast.FencedCodeBlock:
		if entering {
			writer.codeBlock(string(typed.Language(writer.source)), writer.blockText(typed))
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			writer.codeBlock("", writer.blockText(typed))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Blockquote:
		if entering {
			writer.ensureBlankLine()
			bar := writer.newStyle().Foreground(writer.theme.BorderColor).Render("│")
			writer.pushPrefix(bar+" ", 2)
		} else {
			writer.popPrefix()
			writer.ensureBlankLine()
		}

	case *ast.List:
		if entering {
			writer.enterList(typed)
		} else {
			writer.leaveList()
		}

	case *ast.ListItem:
		if entering {
			writer.enterListItem()
		} else {
			writer.leaveListItem()
		}

	case *ast.ThematicBreak:
		if !entering {
			writer.rule()
		}

	case *ast.HTMLBlock:
		if entering {
			writer.htmlBlock(typed)
		}
		return ast.WalkSkipChildren, nil

	case *ast.Text:
		if entering {
			writer.text(string(typed.Segment.Value(writer.source)))
			// Soft breaks become spaces so hard-wrapped source prose
			// reflows at the pane width; hard breaks stay.
			if typed.SoftLineBreak() {
				writer.inline.WriteString(" ")
			}
			if typed.HardLineBreak() {
				writer.inline.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			writer.text(string(typed.Value))
		}

	case *ast.Emphasis:
		delta := 1
		if !entering {
			delta = -1
		}
		if typed.Level >= 2 {
			writer.bold += delta
		} else {
			writer.italic += delta
		}

	case *ast.CodeSpan:
		if entering {
			writer.codeSpan(typed)
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			writer.inline.WriteString(writer.renderChildren(typed))
			if destination := string(typed.Destination); destination != "" {
				writer.faintInline(" (" + destination + ")")
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.AutoLink:
		if entering {
			writer.faintInline(string(typed.URL(writer.source)))
		}

	case *ast.Image:
		if entering {
			label := ansi.Strip(writer.renderChildren(typed))
			if label == "" {
				label = "image"
			}
			writer.faintInline("[" + label + "] (" + string(typed.Destination) + ")")
		}
		return ast.WalkSkipChildren, nil

	case *ast.RawHTML:
		if entering {
			var buffer strings.Builder
			for index := 0; index < typed.Segments.Len(); index++ {
				segment := typed.Segments.At(index)
				buffer.Write(segment.Value(writer.source))
			}
			writer.faintInline(stripHTMLTags(buffer.String()))
		}
		return ast.WalkSkipChildren, nil

	case *extast.Strikethrough:
		if entering {
			writer.strikethrough++
		} else {
			writer.strikethrough--
		}

	case *extast.TaskCheckBox:
		if entering {
			writer.checkbox(typed.IsChecked)
		}
	}
	return ast.WalkContinue, nil
}

// --- Block handling ---

// endBlock flushes the inline accumulator as a wrapped paragraph.
// Tight list items skip the trailing blank line.
func (writer *markdownWriter) endBlock() {
	writer.flushInline()
	writer.ensureNewline()
	if !writer.inTightList() {
		writer.ensureBlankLine()
	}
}

// flushInline wraps the accumulated inline run to the content width
// and writes it with block prefixes applied.
func (writer *markdownWriter) flushInline() {
	content := writer.inline.String()
	writer.inline.Reset()
	if content == "" {
		return
	}
	writer.writeOutput(writer.prefixed(ansi.Wrap(content, writer.contentWidth(), wrapBreakpoints)))
}

// heading writes the collected inline text as a heading. Inline
// styling inside a heading is flattened: the heading style wins.
func (writer *markdownWriter) heading(level int) {
	content := ansi.Strip(writer.inline.String())
	writer.inline.Reset()
	if strings.TrimSpace(content) == "" {
		return
	}
	color := writer.theme.NormalText
	if level <= 2 {
		color = writer.theme.HeaderForeground
	}
	styled := writer.newStyle().Bold(true).Foreground(color).Render(content)
	writer.ensureBlankLine()
	writer.writeOutput(writer.prefixed(ansi.Wrap(styled, writer.contentWidth(), wrapBreakpoints)))
	writer.ensureNewline()
	writer.ensureBlankLine()
}

// codeBlock writes code verbatim, syntax highlighted when the fence
// names a language chroma knows. Code lines are never rewrapped: a
// long line reads better spilling than reflowed.
func (writer *markdownWriter) codeBlock(language, code string) {
	writer.ensureBlankLine()
	for _, line := range strings.Split(strings.TrimRight(writer.highlightCode(code, language), "\n"), "\n") {
		writer.writeOutput(writer.consumeBullet() + line + "\n")
	}
	writer.ensureBlankLine()
}

func (writer *markdownWriter) highlightCode(code, language string) string {
	if language != "" {
		var buffer strings.Builder
		if err := quick.Highlight(&buffer, code, language, "terminal256", "native"); err == nil {
			return buffer.String()
		}
	}
	return writer.newStyle().Foreground(writer.theme.FaintText).Render(code)
}

// blockText joins a block node's line segments back into source text.
func (writer *markdownWriter) blockText(node ast.Node) string {
	var buffer strings.Builder
	lines := node.Lines()
	for index := 0; index < lines.Len(); index++ {
		segment := lines.At(index)
		buffer.Write(segment.Value(writer.source))
	}
	return buffer.String()
}

func (writer *markdownWriter) enterList(list *ast.List) {
	level := listLevel{tight: list.IsTight}
	if list.IsOrdered() {
		level.ordered = true
		level.counter = list.Start
		if level.counter == 0 {
			level.counter = 1
		}
	}
	writer.lists = append(writer.lists, level)
}

func (writer *markdownWriter) leaveList() {
	if len(writer.lists) == 0 {
		return
	}
	tight := writer.lists[len(writer.lists)-1].tight
	writer.lists = writer.lists[:len(writer.lists)-1]
	if !tight {
		writer.ensureBlankLine()
	}
}

func (writer *markdownWriter) enterListItem() {
	if len(writer.lists) == 0 {
		return
	}
	level := &writer.lists[len(writer.lists)-1]
	bullet := "- "
	if level.ordered {
		bullet = fmt.Sprintf("%d. ", level.counter)
		level.counter++
	}
	writer.pendingBullet = writer.linePrefix + bullet
	writer.pushPrefix(strings.Repeat(" ", len(bullet)), len(bullet))
}

func (writer *markdownWriter) leaveListItem() {
	writer.popPrefix()
	if writer.inTightList() {
		writer.ensureNewline()
	} else {
		writer.ensureBlankLine()
	}
}

func (writer *markdownWriter) inTightList() bool {
	if len(writer.lists) == 0 {
		return false
	}
	return writer.lists[len(writer.lists)-1].tight
}

func (writer *markdownWriter) rule() {
	writer.ensureBlankLine()
	line := writer.newStyle().
		Foreground(writer.theme.BorderColor).
		Render(strings.Repeat("─", writer.contentWidth()))
	writer.writeOutput(writer.prefixed(line))
	writer.ensureNewline()
	writer.ensureBlankLine()
}

func (writer *markdownWriter) htmlBlock(node *ast.HTMLBlock) {
	content := strings.TrimSpace(stripHTMLTags(writer.blockText(node)))
	if content == "" {
		return
	}
	writer.ensureBlankLine()
	styled := writer.newStyle().Foreground(writer.theme.FaintText).Render(content)
	writer.writeOutput(writer.prefixed(ansi.Wrap(styled, writer.contentWidth(), wrapBreakpoints)))
	writer.ensureNewline()
	writer.ensureBlankLine()
}

// --- Inline handling ---

// text styles a literal run with the active emphasis state and
// appends it to the inline accumulator.
func (writer *markdownWriter) text(value string) {
	if value == "" {
		return
	}
	style := writer.newStyle().Foreground(writer.theme.NormalText)
	if writer.bold > 0 {
		style = style.Bold(true)
	}
	if writer.italic > 0 {
		style = style.Italic(true)
	}
	if writer.strikethrough > 0 {
		style = style.Strikethrough(true)
	}
	writer.inline.WriteString(style.Render(value))
}

func (writer *markdownWriter) faintInline(value string) {
	if value == "" {
		return
	}
	writer.inline.WriteString(writer.newStyle().Foreground(writer.theme.FaintText).Render(value))
}

// codeSpan renders inline code in the faint style, flattening any
// children to their literal text.
func (writer *markdownWriter) codeSpan(node *ast.CodeSpan) {
	var buffer strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch typed := child.(type) {
		case *ast.Text:
			buffer.Write(typed.Segment.Value(writer.source))
		case *ast.String:
			buffer.Write(typed.Value)
		}
	}
	writer.faintInline(buffer.String())
}

func (writer *markdownWriter) checkbox(checked bool) {
	if checked {
		writer.inline.WriteString(writer.newStyle().Foreground(writer.theme.SeverityOK).Render("[x]"))
		return
	}
	writer.text("[ ]")
}

// renderChildren renders a node's inline children into a detached
// buffer, leaving the main accumulator and emphasis state untouched.
func (writer *markdownWriter) renderChildren(node ast.Node) string {
	saved := writer.inline.String()
	savedBold, savedItalic, savedStrike := writer.bold, writer.italic, writer.strikethrough
	writer.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, writer.walk)
	}
	content := writer.inline.String()
	writer.inline.Reset()
	writer.inline.WriteString(saved)
	writer.bold, writer.italic, writer.strikethrough = savedBold, savedItalic, savedStrike
	return content
}

// --- Output plumbing ---

func (writer *markdownWriter) newStyle() lipgloss.Style {
	return writer.styler.NewStyle()
}

// writeOutput appends rendered text, tracking trailing newlines.
func (writer *markdownWriter) writeOutput(text string) {
	if text == "" {
		return
	}
	writer.output.WriteString(text)
	trailing := 0
	for index := len(text) - 1; index >= 0 && text[index] == '\n'; index-- {
		trailing++
	}
	if trailing == len(text) {
		writer.trailingNewlines += trailing
	} else {
		writer.trailingNewlines = trailing
	}
}

func (writer *markdownWriter) ensureNewline() {
	if writer.output.Len() == 0 {
		return
	}
	if writer.trailingNewlines < 1 {
		writer.writeOutput("\n")
	}
}

func (writer *markdownWriter) ensureBlankLine() {
	if writer.output.Len() == 0 {
		return
	}
	for writer.trailingNewlines < 2 {
		writer.writeOutput("\n")
	}
}

func (writer *markdownWriter) pushPrefix(text string, width int) {
	writer.prefixes = append(writer.prefixes, blockPrefix{text: text, width: width})
	writer.rebuildPrefix()
}

func (writer *markdownWriter) popPrefix() {
	if len(writer.prefixes) == 0 {
		return
	}
	writer.prefixes = writer.prefixes[:len(writer.prefixes)-1]
	writer.rebuildPrefix()
}

func (writer *markdownWriter) rebuildPrefix() {
	var prefix strings.Builder
	width := 0
	for _, level := range writer.prefixes {
		prefix.WriteString(level.text)
		width += level.width
	}
	writer.linePrefix = prefix.String()
	writer.prefixWidth = width
}

// prefixed puts the line prefix in front of every line, the pending
// list bullet taking the first line when one is queued.
func (writer *markdownWriter) prefixed(content string) string {
	lines := strings.Split(content, "\n")
	for index, line := range lines {
		if index == 0 {
			lines[index] = writer.consumeBullet() + line
		} else {
			lines[index] = writer.linePrefix + line
		}
	}
	return strings.Join(lines, "\n")
}

func (writer *markdownWriter) consumeBullet() string {
	if writer.pendingBullet != "" {
		bullet := writer.pendingBullet
		writer.pendingBullet = ""
		return bullet
	}
	return writer.linePrefix
}

func (writer *markdownWriter) contentWidth() int {
	width := writer.width - writer.prefixWidth
	if width < 10 {
		width = 10
	}
	return width
}

// stripHTMLTags drops everything between angle brackets, keeping the
// text between tags.
func stripHTMLTags(input string) string {
	var out strings.Builder
	inTag := false
	for _, char := range input {
		switch {
		case char == '<':
			inTag = true
		case char == '>':
			inTag = false
		case !inTag:
			out.WriteRune(char)
		}
	}
	return out.String()
}
