package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create processes table
			CREATE TABLE processes (
				company_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				fiscal_year INT NOT NULL,
				status VARCHAR(32) NOT NULL CHECK (status IN ('draft', 'active', 'simulating', 'simulated', 'finalizing', 'finalized')),
				last_run_id VARCHAR(255),
				simulation_schedule VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finalized_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (company_id, id)
			);

			CREATE INDEX idx_processes_status ON processes(status);
			CREATE INDEX idx_processes_created_at ON processes(created_at);
			CREATE INDEX idx_processes_deleted_at ON processes(deleted_at);

			-- Create process_nodes table
			CREATE TABLE process_nodes (
				company_id VARCHAR(255) NOT NULL,
				process_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(64) NOT NULL,
				title VARCHAR(255) NOT NULL,
				configuration JSONB DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				stop_on_error BOOLEAN,
				position_x INT DEFAULT 0,
				position_y INT DEFAULT 0,
				sort_order INT NOT NULL,
				PRIMARY KEY (company_id, process_id, id),
				FOREIGN KEY (company_id, process_id) REFERENCES processes(company_id, id) ON DELETE CASCADE
			);

			CREATE INDEX idx_process_nodes_type ON process_nodes(node_type);

			-- Create process_connections table
			CREATE TABLE process_connections (
				company_id VARCHAR(255) NOT NULL,
				process_id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				sort_order INT NOT NULL,
				PRIMARY KEY (company_id, process_id, source_node_id, target_node_id),
				FOREIGN KEY (company_id, process_id) REFERENCES processes(company_id, id) ON DELETE CASCADE
			);
		`,
		2: `
			-- Migration 2: execution run reports
			CREATE TABLE execution_runs (
				company_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				process_id VARCHAR(255) NOT NULL,
				mode VARCHAR(16) NOT NULL CHECK (mode IN ('simulate', 'finalize')),
				status VARCHAR(16) NOT NULL,
				waves JSONB NOT NULL DEFAULT '[]',
				results JSONB NOT NULL DEFAULT '[]',
				errors JSONB NOT NULL DEFAULT '[]',
				alerts JSONB NOT NULL DEFAULT '[]',
				metadata JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				PRIMARY KEY (company_id, id)
			);

			CREATE INDEX idx_execution_runs_process ON execution_runs(company_id, process_id, started_at DESC);
			CREATE INDEX idx_execution_runs_status ON execution_runs(status);
		`,
	}
}
