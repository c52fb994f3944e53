// Package script turns SQL script files into ordered, individually executable
// statements.
//
// Scripts are terminated by ';' by default. A line starting with the
// DELIMITER keyword switches the terminator for the rest of the file (or until
// the next directive), which lets a script embed stored routines whose bodies
// contain ';':
//
//	DROP PROCEDURE IF EXISTS sp_load_dw;
//	DELIMITER $$
//	CREATE PROCEDURE sp_load_dw()
//	BEGIN
//	    INSERT INTO dim_date SELECT ...;
//	    INSERT INTO fact_listing SELECT ...;
//	END $$
//	DELIMITER ;
//
// The default splitter is textual and does not know about string literals or
// comments. Options.QuoteAware switches boundary detection to a lexer that
// skips delimiters inside quotes and comments.
package script
