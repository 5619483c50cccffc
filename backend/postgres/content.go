package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/model"
)

// entries imported from secondary sources (src 3) are not searchable
const hiddenSource = 3

func (s *Source) sentencesQuery(query string, page int) sq.SelectBuilder {
	return qb().Select("json").
		From("mv_translated_sentences").
		Where(sq.Expr("(json ->> 'id')::integer IN (SELECT get_sentences(?, ?, ?, ?, ?))",
			query, 0, 0, page, s.pageSize)).
		OrderBy("(json ->> 'id')::integer")
}

func (s *Source) Sentences(ctx context.Context, query string, page int) backend.Rows[model.SentenceBundle] {
	return jsonRows[model.SentenceBundle](s, ctx, "Sentences", s.sentencesQuery(query, page))
}

func translationsQuery(ids []int, language string) sq.SelectBuilder {
	return qb().Select("json").
		From("mv_translated_sentences").
		Where(sq.Eq{"(json ->> 'id')::integer": ids}).
		Where(sq.Eq{"json ->> 'language'": language}).
		OrderBy("(json ->> 'id')::integer")
}

func (s *Source) Translations(ctx context.Context, ids []int, language string) backend.Rows[model.Sentence] {
	if len(ids) == 0 {
		return backend.FromSlice[model.Sentence](nil)
	}
	return jsonRows[model.Sentence](s, ctx, "Translations", translationsQuery(ids, language))
}

// kanjiQuery matches by meaning, reading (hiragana or katakana, with or
// without okurigana dots), literal characters in the query, or
// comma-separated ids.
func (s *Source) kanjiQuery(query string) sq.SelectBuilder {
	return qb().Select("json").
		From("mv_kanji").
		Where(sq.Expr(`(json ->> 'id')::integer = ANY (
	SELECT character FROM meaning WHERE lower(meaning) = lower(?)
	UNION
	SELECT character FROM reading
	WHERE reading IN (hiragana(?), katakana(?))
	   OR replace(reading, '.', '') IN (hiragana(?), katakana(?))
	UNION
	SELECT id FROM character
	WHERE literal = ANY (regexp_split_to_array(?, ''))
	   OR id::text = ANY (regexp_split_to_array(?, ',')))`,
			query, query, query, query, query, query, query)).
		Limit(uint64(s.pageSize))
}

func (s *Source) Kanji(ctx context.Context, query string) backend.Rows[model.Kanji] {
	return jsonRows[model.Kanji](s, ctx, "Kanji", s.kanjiQuery(query))
}

func (s *Source) entriesQuery(word string, page int) sq.SelectBuilder {
	return qb().Select("entry.id").
		From("entr entry").
		Join("get_words(?, ?, ?, ?) w ON w = entry.id", word, word, page, s.pageSize).
		Where(sq.NotEq{"entry.src": hiddenSource})
}

func (s *Source) EntriesForWord(ctx context.Context, word string, page int) backend.Rows[int] {
	return rows(s, ctx, "EntriesForWord", s.entriesQuery(word, page), func(r pgx.Rows) (int, error) {
		var id int
		err := r.Scan(&id)
		return id, err
	})
}

func entryQuery(id int) sq.SelectBuilder {
	return qb().Select("json_build_object('id', entry.id, 'forms', forms.json, 'senses', senses.json)").
		From("entr entry").
		Join("mv_forms forms ON forms.entr = entry.id").
		Join("mv_senses senses ON senses.entr = entry.id").
		Where(sq.Eq{"entry.id": id})
}

func (s *Source) Entry(ctx context.Context, id int) (model.Word, bool, error) {
	return jsonOne[model.Word](s, ctx, "Entry", entryQuery(id))
}

func elementsQuery(view string, id int) sq.SelectBuilder {
	return qb().Select("json_array_elements(json)").
		From(view).
		Where(sq.Eq{"entr": id})
}

func (s *Source) KanjisForEntry(ctx context.Context, id int) backend.Rows[model.Form] {
	return jsonRows[model.Form](s, ctx, "KanjisForEntry", elementsQuery("mv_forms", id))
}

func (s *Source) SensesForEntry(ctx context.Context, id int) backend.Rows[model.Sense] {
	return jsonRows[model.Sense](s, ctx, "SensesForEntry", elementsQuery("mv_senses", id))
}
