package registry

import (
	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// FileTypes maps each Receita Federal dataset key to its full behavior
// profile. The column lists mirror the positional layout of the published
// files exactly; the files ship no header row, so a mismatch here would
// silently shift every value one column over.
var FileTypes = map[string]models.FileTypeConfig{
	"empresas": {
		Key:       "empresas",
		ZipPrefix: "Empresas",
		ZipCount:  10,
		Table:     "empresas",
		Columns: []string{
			"cnpj_basico", "razao_social", "natureza_juridica",
			"qualificacao_responsavel", "capital_social", "porte_empresa",
			"ente_federativo",
		},
		ConflictKey: []string{"cnpj_basico"},
	},
	"estabelecimentos": {
		Key:       "estabelecimentos",
		ZipPrefix: "Estabelecimentos",
		ZipCount:  10,
		Table:     "estabelecimentos",
		Columns: []string{
			"cnpj_basico", "cnpj_ordem", "cnpj_dv", "identificador_matriz_filial",
			"nome_fantasia", "situacao_cadastral", "data_situacao_cadastral",
			"motivo_situacao_cadastral", "nome_cidade_exterior", "pais",
			"data_inicio_atividade", "cnae_principal", "cnae_secundario",
			"tipo_logradouro", "logradouro", "numero", "complemento", "bairro",
			"cep", "uf", "municipio", "ddd1", "telefone1", "ddd2", "telefone2",
			"ddd_fax", "fax", "email", "situacao_especial", "data_situacao_especial",
		},
		ConflictKey: []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
	},
	"socios": {
		Key:       "socios",
		ZipPrefix: "Socios",
		ZipCount:  10,
		Table:     "socios",
		Columns: []string{
			"cnpj_basico", "identificador_socio", "nome_socio", "cpf_cnpj_socio",
			"qualificacao_socio", "data_entrada", "pais", "representante_legal",
			"nome_representante", "qualificacao_representante", "faixa_etaria",
		},
		// Partner rows carry no natural key, so each run truncates and
		// rebuilds the table.
		ConflictKey: nil,
	},
	"municipios": {
		Key:         "municipios",
		ZipPrefix:   "Municipios",
		ZipCount:    1,
		Table:       "municipios",
		Columns:     []string{"codigo", "descricao"},
		ConflictKey: []string{"codigo"},
	},
	"paises": {
		Key:         "paises",
		ZipPrefix:   "Paises",
		ZipCount:    1,
		Table:       "paises",
		Columns:     []string{"codigo", "descricao"},
		ConflictKey: []string{"codigo"},
	},
	"naturezas": {
		Key:         "naturezas",
		ZipPrefix:   "Naturezas",
		ZipCount:    1,
		Table:       "naturezas_juridicas",
		Columns:     []string{"codigo", "descricao"},
		ConflictKey: []string{"codigo"},
	},
	"qualificacoes": {
		Key:         "qualificacoes",
		ZipPrefix:   "Qualificacoes",
		ZipCount:    1,
		Table:       "qualificacoes",
		Columns:     []string{"codigo", "descricao"},
		ConflictKey: []string{"codigo"},
	},
	"cnaes": {
		Key:         "cnaes",
		ZipPrefix:   "Cnaes",
		ZipCount:    1,
		Table:       "cnaes",
		Columns:     []string{"codigo", "descricao"},
		ConflictKey: []string{"codigo"},
	},
}

// ProcessingOrder lists every dataset key with the small reference tables
// first, so that multi-type submissions load lookups before the tables that
// reference them.
var ProcessingOrder = []string{
	"municipios", "paises", "naturezas", "qualificacoes", "cnaes",
	"empresas", "estabelecimentos", "socios",
}

// CapitalColumn is the one numeric column in the source layout; its values
// arrive as locale-formatted text ("1.234,56").
const CapitalColumn = "capital_social"

// Lookup returns the behavior profile for a dataset key.
func Lookup(key string) (models.FileTypeConfig, error) {
	cfg, ok := FileTypes[key]
	if !ok {
		return models.FileTypeConfig{}, &models.ConfigurationError{FileType: key}
	}
	return cfg, nil
}
