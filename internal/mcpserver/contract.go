package mcpserver

// RecordFormatContract describes the on-disk record format that LLM
// consumers should follow when creating or appending to records.
const RecordFormatContract = `# Rallylog Record Format

Every practice, match or lesson entry is one Markdown file with a YAML header.

## Structure

` + "```" + `markdown
---
date: "2025-01-10"          # calendar day, YYYY-MM-DD (YYYY/MM/DD is also read)
scene: match                # practice | match | lesson | school | free text
tags: [serve, forehand]     # OPTIONAL – list, or a comma-separated string
title: Club league          # OPTIONAL – otherwise the first heading is used
---

Free text body. Japanese and English may be mixed.
` + "```" + `

## Rules

1. **Location.** Files live under ` + "`" + `sessions/YYYY/MM/` + "`" + ` and are named
   ` + "`" + `YYYY-MM-DD-HHMMSS-scene.md` + "`" + `. The file name without ` + "`" + `.md` + "`" + ` is the record id.
2. **Ids are never reused.** A second record created in the same second gets a
   numeric suffix (` + "`" + `-2` + "`" + `, ` + "`" + `-3` + "`" + `, ...).
3. **Header keys** other than date, scene, tags and title are preserved as-is.
4. **A missing date** falls back to the date in the file name.
5. **A missing scene** defaults to ` + "`" + `practice` + "`" + `.
6. **Records are append-only.** Later thoughts go in a callout block at the end,
   written by the ` + "`" + `append_record` + "`" + ` tool:

` + "```" + `markdown
> [!tip] Coach (2025-01-10 21:30)
> Toss further in front on the second serve.
` + "```" + `

## Choosing a retrieval tool

- ` + "`" + `similar_records` + "`" + `: past entries resembling today's, for comparison. Skips the last 3 days.
- ` + "`" + `recent_records` + "`" + `: the newest entries, to check today's entry for contradictions.
- ` + "`" + `related_records` + "`" + `: entries that help answer a question.
- ` + "`" + `sensation_records` + "`" + `: feel words and onomatopoeia (` + "`" + `スパッ` + "`" + `, ` + "`" + `ズバッ` + "`" + `) expanded through synonyms.
- ` + "`" + `search_records` + "`" + ` / ` + "`" + `find_records_by_date` + "`" + `: exact keyword, tag, scene and date filters.
`
