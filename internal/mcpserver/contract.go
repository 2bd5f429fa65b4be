package mcpserver

// LetterFormatContract describes the Markdown letter format accepted by the
// seed directory and the validate_letter tool.
const LetterFormatContract = `# Open Me Letter Format

Every seed letter is a Markdown file with a YAML frontmatter block.

## Structure

` + "```" + `markdown
---
id: sad-day                     # OPTIONAL – defaults to the file name stem; [a-z0-9-]+
title: Open when you feel sad   # OPTIONAL – defaults to the first "# " heading; max 120 chars
preview: A reminder...          # REQUIRED – max 240 chars
lock_type: honor                # REQUIRED – honor | time
unlock_at: 2026-03-01T09:00:00Z # REQUIRED for time locks, FORBIDDEN for honor locks
media:                          # OPTIONAL – ordered list
  - kind: image                 # image | audio | video
    src: https://example.com/a.jpg   # http(s) URL
    alt: Warm memory            # OPTIONAL – max 240 chars
---

Letter body in Markdown (max 6000 chars).
` + "```" + `

## Rules

1. **Frontmatter is mandatory.** The ` + "`---`" + ` fence must be the first line.
2. **Honor locks** open when the reader confirms they are ready. No timestamp.
3. **Time locks** open once the clock passes ` + "`unlock_at`" + `, an ISO-8601 datetime
   with a time component. Datetimes without a zone are read as UTC.
4. **Ids are unique** across the seed directory.
5. **Encoding** is UTF-8.
`
