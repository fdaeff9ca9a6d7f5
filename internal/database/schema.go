package database

import (
	"context"
	"fmt"
)

// Setup creates the job-tracking tables and the eight destination tables if
// they do not exist. Idempotent; runs at service startup.
func (s *PostgresStore) Setup(ctx context.Context) error {
	if err := s.CreateJobTables(ctx); err != nil {
		return err
	}
	return s.CreateDataTables(ctx)
}

func (s *PostgresStore) CreateJobTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ingestion_jobs (
			id UUID PRIMARY KEY,
			source VARCHAR(20) NOT NULL CHECK (source IN ('upload', 'link')),
			file_name VARCHAR(255),
			url TEXT,
			file_type VARCHAR(50) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			progress INTEGER NOT NULL DEFAULT 0,
			records_processed BIGINT NOT NULL DEFAULT 0,
			total_records BIGINT NOT NULL DEFAULT 0,
			error_message TEXT,
			archive_checksum VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS ingestion_logs (
			id BIGSERIAL PRIMARY KEY,
			job_id UUID NOT NULL,
			level VARCHAR(10) NOT NULL CHECK (level IN ('debug', 'info', 'warn', 'error')),
			message TEXT NOT NULL,
			details TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ingestion_logs_job ON ingestion_logs (job_id, created_at);`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error creating job tables: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) CreateDataTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS empresas (
			cnpj_basico VARCHAR(8) PRIMARY KEY,
			razao_social TEXT,
			natureza_juridica VARCHAR(10),
			qualificacao_responsavel VARCHAR(10),
			capital_social NUMERIC(18, 2),
			porte_empresa VARCHAR(10),
			ente_federativo TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS estabelecimentos (
			cnpj_basico VARCHAR(8) NOT NULL,
			cnpj_ordem VARCHAR(4) NOT NULL,
			cnpj_dv VARCHAR(2) NOT NULL,
			identificador_matriz_filial VARCHAR(2),
			nome_fantasia TEXT,
			situacao_cadastral VARCHAR(4),
			data_situacao_cadastral VARCHAR(10),
			motivo_situacao_cadastral VARCHAR(4),
			nome_cidade_exterior TEXT,
			pais VARCHAR(5),
			data_inicio_atividade VARCHAR(10),
			cnae_principal VARCHAR(10),
			cnae_secundario TEXT,
			tipo_logradouro TEXT,
			logradouro TEXT,
			numero TEXT,
			complemento TEXT,
			bairro TEXT,
			cep VARCHAR(10),
			uf VARCHAR(2),
			municipio VARCHAR(6),
			ddd1 VARCHAR(6),
			telefone1 VARCHAR(12),
			ddd2 VARCHAR(6),
			telefone2 VARCHAR(12),
			ddd_fax VARCHAR(6),
			fax VARCHAR(12),
			email TEXT,
			situacao_especial TEXT,
			data_situacao_especial VARCHAR(10),
			PRIMARY KEY (cnpj_basico, cnpj_ordem, cnpj_dv)
		);`,
		`CREATE TABLE IF NOT EXISTS socios (
			cnpj_basico VARCHAR(8),
			identificador_socio VARCHAR(2),
			nome_socio TEXT,
			cpf_cnpj_socio VARCHAR(16),
			qualificacao_socio VARCHAR(4),
			data_entrada VARCHAR(10),
			pais VARCHAR(5),
			representante_legal VARCHAR(16),
			nome_representante TEXT,
			qualificacao_representante VARCHAR(4),
			faixa_etaria VARCHAR(2)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_socios_cnpj_basico ON socios (cnpj_basico);`,
	}

	for _, table := range []string{"municipios", "paises", "naturezas_juridicas", "qualificacoes", "cnaes"} {
		queries = append(queries, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			codigo VARCHAR(10) PRIMARY KEY,
			descricao TEXT
		);`, table))
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error creating data tables: %w", err)
		}
	}

	return nil
}
