package config

import (
	"os"
	"path/filepath"
	"strings"
)

// LoadEnv загружает переменные окружения из .env файла.
// Строки KEY=VALUE, допускается префикс export и кавычки вокруг значения.
// Пустые строки и комментарии (#) пропускаются.
func LoadEnv(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)

		// Пропустить пустые строки и комментарии
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Разделить ключ и значение
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(strings.TrimPrefix(parts[0], "export "))
		value := unquote(strings.TrimSpace(parts[1]))

		if key != "" {
			os.Setenv(key, value)
		}
	}

	return nil
}

// unquote снимает парные кавычки вокруг значения
func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

// LoadEnvOptional загружает переменные окружения из .env файла, если он существует.
func LoadEnvOptional(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	return LoadEnv(path)
}

// expandEnv расширяет переменную окружения формата ${VAR} или ${VAR:default}.
// Строки без ${ возвращаются как есть.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	suffix := s[end+1:]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val + suffix
		}
		return defaultVal + suffix
	}

	// Без значения по умолчанию
	return os.Getenv(content) + suffix
}

// expandHome расширяет ~ в пути
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
