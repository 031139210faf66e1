package db

// PostgreSQL migrations for the bookmark schema

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create_categories_table",
		Up: `
			CREATE TABLE IF NOT EXISTS categories (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS categories;
		`,
	},
	{
		Version: 2,
		Name:    "create_tags_table",
		Up: `
			CREATE TABLE IF NOT EXISTS tags (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS tags;
		`,
	},
	{
		Version: 3,
		Name:    "create_bookmarks_table",
		Up: `
			CREATE TABLE IF NOT EXISTS bookmarks (
				id BIGSERIAL PRIMARY KEY,
				category_id BIGINT NOT NULL REFERENCES categories(id),
				url TEXT NOT NULL,
				title TEXT,
				description TEXT,
				thumbnail_url TEXT,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				updated_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_bookmarks_category_id ON bookmarks(category_id);
			CREATE INDEX IF NOT EXISTS idx_bookmarks_created_at ON bookmarks(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_bookmarks_created_at;
			DROP INDEX IF EXISTS idx_bookmarks_category_id;
			DROP TABLE IF EXISTS bookmarks;
		`,
	},
	{
		Version: 4,
		Name:    "create_bookmark_tags_table",
		Up: `
			CREATE TABLE IF NOT EXISTS bookmark_tags (
				id BIGSERIAL PRIMARY KEY,
				bookmark_id BIGINT NOT NULL REFERENCES bookmarks(id) ON DELETE CASCADE,
				tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				UNIQUE (bookmark_id, tag_id)
			);
			CREATE INDEX IF NOT EXISTS idx_bookmark_tags_bookmark_id ON bookmark_tags(bookmark_id);
			CREATE INDEX IF NOT EXISTS idx_bookmark_tags_tag_id ON bookmark_tags(tag_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_bookmark_tags_tag_id;
			DROP INDEX IF EXISTS idx_bookmark_tags_bookmark_id;
			DROP TABLE IF EXISTS bookmark_tags;
		`,
	},
}
